// Package jdk locates a usable Java runtime on the remote host.
//
// Providers yield candidate executable paths; the resolver probes each with
// a "-version" invocation over the caller's command runner and keeps the
// first candidate whose banner reports an acceptable version.
package jdk

import "context"

// Kind classifies a node property record.
type Kind int

const (
	// KindEnv is an environment variable declared on the node, e.g.
	// JAVA_HOME.
	KindEnv Kind = iota

	// KindToolHome is a tool installation directory recorded for the
	// node by outside tooling.
	KindToolHome
)

// Property is one environment or tool-location record declared on the node.
type Property struct {
	Kind  Kind
	Name  string
	Value string
}

// Env describes the node as seen by providers: its working directory and
// its declared properties, in declaration order.
type Env struct {
	WorkDir    string
	Properties []Property
}

// Provider yields candidate java paths for the resolver to probe. The
// resolver consults providers in registration order and candidates in the
// order each provider returns them.
type Provider interface {
	Candidates(ctx context.Context, env Env) []string
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, env Env) []string

func (f ProviderFunc) Candidates(ctx context.Context, env Env) []string { return f(ctx, env) }

// wellKnownPaths are probed first: the bare name resolved via PATH, then
// the usual install locations.
var wellKnownPaths = []string{
	"java",
	"/usr/bin/java",
	"/usr/java/default/bin/java",
	"/usr/java/latest/bin/java",
	"/usr/local/bin/java",
	"/usr/local/java/bin/java",
}

// DefaultProvider yields the well-known locations, a JAVA_HOME declared in
// the node's environment properties, every recorded JDK tool home, and the
// self-installed convention under the working directory.
type DefaultProvider struct{}

func (DefaultProvider) Candidates(_ context.Context, env Env) []string {
	candidates := make([]string, 0, len(wellKnownPaths)+len(env.Properties)+1)
	candidates = append(candidates, wellKnownPaths...)

	if env.WorkDir != "" {
		candidates = append(candidates, env.WorkDir+"/jdk/bin/java")
	}

	for _, p := range env.Properties {
		switch p.Kind {
		case KindEnv:
			if p.Name == "JAVA_HOME" && p.Value != "" {
				candidates = append(candidates, p.Value+"/bin/java")
			}
		case KindToolHome:
			if p.Value != "" {
				candidates = append(candidates, p.Value+"/bin/java")
			}
		}
	}

	return candidates
}

// DefaultProviders is the registry used when the caller supplies none.
func DefaultProviders() []Provider {
	return []Provider{DefaultProvider{}}
}
