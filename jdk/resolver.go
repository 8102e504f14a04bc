package jdk

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

// Runner executes one remote command, streaming combined output into sink
// and returning the exit code.
type Runner interface {
	Run(ctx context.Context, command string, sink io.Writer) (int, error)
}

// Options configures resolution.
type Options struct {
	// Override skips probing entirely and is returned as-is.
	Override string

	// JavaOptions is inserted between the candidate and -version, the
	// same way it will appear on the real launch command line.
	JavaOptions string

	// MinVersion is the acceptance threshold; 0 means MinVersion (1.5).
	MinVersion float64
}

// NotFoundError reports that every candidate from every provider failed to
// validate. Tried preserves probe order.
type NotFoundError struct {
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no supported java version found, tried: %s", strings.Join(e.Tried, ", "))
}

// Resolve returns the first candidate whose -version banner reports a
// version at or above the threshold. Probe failures and rejected banners
// are diagnostics; only exhausting every candidate is an error.
func Resolve(ctx context.Context, r Runner, providers []Provider, env Env, opts Options, log io.Writer) (string, error) {
	if opts.Override != "" {
		return opts.Override, nil
	}

	if opts.MinVersion == 0 {
		opts.MinVersion = MinVersion
	}

	if len(providers) == 0 {
		providers = DefaultProviders()
	}

	var tried []string

	for _, p := range providers {
		for _, candidate := range p.Candidates(ctx, env) {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			tried = append(tried, candidate)
			fmt.Fprintf(log, "Checking java version of %s\n", candidate)

			version, err := probe(ctx, r, candidate, opts)
			if err != nil {
				fmt.Fprintf(log, "Couldn't figure out the java version of %s: %v\n", candidate, err)

				continue
			}

			fmt.Fprintf(log, "%s -version returned %s\n", candidate, version)

			return candidate, nil
		}
	}

	return "", &NotFoundError{Tried: tried}
}

// probe runs `<candidate> <opts> -version` and scans the captured output
// for an acceptable banner line. Rejected lines don't abort the scan.
func probe(ctx context.Context, r Runner, candidate string, opts Options) (string, error) {
	command := candidate
	if opts.JavaOptions != "" {
		command += " " + opts.JavaOptions
	}

	command += " -version"

	var out bytes.Buffer
	if _, err := r.Run(ctx, command, &out); err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		version, ok := parseBanner(scanner.Text())
		if !ok {
			continue
		}

		if n, ok := versionValue(version); !ok || n < opts.MinVersion {
			continue
		}

		return version, nil
	}

	return "", fmt.Errorf("no version banner at or above %v in output", opts.MinVersion)
}
