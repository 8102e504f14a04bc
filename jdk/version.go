package jdk

import (
	"strconv"
	"strings"
)

// MinVersion is the default acceptance threshold. 1.5 admits every Java the
// agent payload can run on, including post-1.x numbering (9, 11, 17, ...).
const MinVersion = 1.5

// parseBanner extracts the quoted version from a `java -version` banner
// line such as
//
//	java version "1.8.0_212"
//	openjdk version "17.0.2" 2022-01-18
//
// Matching is case-insensitive and keyed on the `version "` marker so that
// vendor prefixes don't matter.
func parseBanner(line string) (string, bool) {
	lower := strings.ToLower(line)

	idx := strings.Index(lower, ` version "`)
	if idx < 0 {
		return "", false
	}

	rest := line[idx+len(` version "`):]

	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}

	return rest[:end], true
}

// versionValue parses the leading numeric value of a version string,
// reading left to right through at most one dot: "1.8.0_212" is 1.8,
// "1.4.2" is 1.4, "17" is 17.
func versionValue(v string) (float64, bool) {
	end := 0
	dots := 0

	for end < len(v) {
		c := v[end]
		if c == '.' {
			dots++
			if dots > 1 {
				break
			}
		} else if c < '0' || c > '9' {
			break
		}

		end++
	}

	// A trailing dot ("1.") is not part of the number.
	prefix := strings.TrimSuffix(v[:end], ".")
	if prefix == "" {
		return 0, false
	}

	n, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}
