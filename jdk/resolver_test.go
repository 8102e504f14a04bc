package jdk_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/halverson/sshlaunch/jdk"
	"github.com/halverson/sshlaunch/launchtest"
)

func provider(candidates ...string) jdk.Provider {
	return jdk.ProviderFunc(func(context.Context, jdk.Env) []string {
		return candidates
	})
}

func TestResolve_OverrideSkipsProbing(t *testing.T) {
	t.Parallel()

	runner := launchtest.NewScriptRunner(nil)

	java, err := jdk.Resolve(context.Background(), runner, nil, jdk.Env{},
		jdk.Options{Override: "/opt/custom/bin/java"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/opt/custom/bin/java", java)
	assert.Empty(t, runner.Calls())
}

func TestResolve_FirstAcceptableCandidateWins(t *testing.T) {
	t.Parallel()

	runner := launchtest.NewScriptRunner(map[string]launchtest.Response{
		"/bad/java -version":     {Output: "sh: /bad/java: No such file or directory\n", Code: 127},
		"/usr/bin/java -version": {Output: "java version \"1.8.0_212\"\nJava(TM) SE Runtime Environment\n"},
	})

	java, err := jdk.Resolve(context.Background(), runner,
		[]jdk.Provider{provider("/bad/java", "/usr/bin/java")},
		jdk.Env{}, jdk.Options{}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/java", java)
	assert.Equal(t, []string{"/bad/java -version", "/usr/bin/java -version"}, runner.Calls())
}

func TestResolve_RejectsVersionsBelowMinimum(t *testing.T) {
	t.Parallel()

	runner := launchtest.NewScriptRunner(map[string]launchtest.Response{
		"/old/java -version": {Output: "java version \"1.4.2\"\n"},
		"/new/java -version": {Output: "openjdk version \"17.0.2\" 2022-01-18\n"},
	})

	java, err := jdk.Resolve(context.Background(), runner,
		[]jdk.Provider{provider("/old/java", "/new/java")},
		jdk.Env{}, jdk.Options{}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/new/java", java)
}

func TestResolve_ScansPastRejectedBannerLines(t *testing.T) {
	t.Parallel()

	// A wrapper script may emit an old banner before the real one; a
	// rejected line must not condemn the whole candidate.
	runner := launchtest.NewScriptRunner(map[string]launchtest.Response{
		"/wrapped/java -version": {Output: "java version \"1.4.2\"\njava version \"11.0.4\"\n"},
	})

	java, err := jdk.Resolve(context.Background(), runner,
		[]jdk.Provider{provider("/wrapped/java")},
		jdk.Env{}, jdk.Options{}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/wrapped/java", java)
}

func TestResolve_ExhaustionReportsEveryCandidateTried(t *testing.T) {
	t.Parallel()

	runner := launchtest.NewScriptRunner(map[string]launchtest.Response{
		"/a/java -version": {Output: "command not found\n", Code: 127},
		"/b/java -version": {Output: "java version \"1.4.2\"\n"},
	})

	_, err := jdk.Resolve(context.Background(), runner,
		[]jdk.Provider{provider("/a/java"), provider("/b/java")},
		jdk.Env{}, jdk.Options{}, io.Discard)
	require.Error(t, err)

	nf := &jdk.NotFoundError{}
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"/a/java", "/b/java"}, nf.Tried)
}

func TestResolve_ProbeFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	runner := launchtest.NewScriptRunner(map[string]launchtest.Response{
		"/flaky/java -version": {Err: errors.New("channel torn down")},
		"/good/java -version":  {Output: "openjdk version \"11.0.4\"\n"},
	})

	java, err := jdk.Resolve(context.Background(), runner,
		[]jdk.Provider{provider("/flaky/java", "/good/java")},
		jdk.Env{}, jdk.Options{}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/good/java", java)
}

func TestResolve_JavaOptionsAppearOnProbeCommand(t *testing.T) {
	t.Parallel()

	runner := launchtest.NewScriptRunner(map[string]launchtest.Response{
		"java -Xmx512m -version": {Output: "openjdk version \"17\"\n"},
	})

	java, err := jdk.Resolve(context.Background(), runner,
		[]jdk.Provider{provider("java")},
		jdk.Env{}, jdk.Options{JavaOptions: "-Xmx512m"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "java", java)
	assert.Equal(t, 1, runner.CallCount("java -Xmx512m -version"))
}

func TestResolve_HonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := launchtest.NewScriptRunner(nil)

	_, err := jdk.Resolve(ctx, runner,
		[]jdk.Provider{provider("java")},
		jdk.Env{}, jdk.Options{}, io.Discard)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.Calls())
}

func TestDefaultProvider_CandidateOrder(t *testing.T) {
	t.Parallel()

	env := jdk.Env{
		WorkDir: "/home/agent",
		Properties: []jdk.Property{
			{Kind: jdk.KindEnv, Name: "PATH", Value: "/usr/bin"},
			{Kind: jdk.KindEnv, Name: "JAVA_HOME", Value: "/opt/jdk11"},
			{Kind: jdk.KindToolHome, Name: "jdk", Value: "/opt/jdk8"},
			{Kind: jdk.KindToolHome, Name: "jdk", Value: ""},
		},
	}

	got := jdk.DefaultProvider{}.Candidates(context.Background(), env)

	require.NotEmpty(t, got)
	assert.Equal(t, "java", got[0], "bare PATH lookup comes first")
	assert.Contains(t, got, "/usr/bin/java")
	assert.Contains(t, got, "/home/agent/jdk/bin/java")
	assert.Contains(t, got, "/opt/jdk11/bin/java")
	assert.Contains(t, got, "/opt/jdk8/bin/java")
	assert.NotContains(t, got, "/bin/java", "empty tool home must not contribute")
}

func TestDefaultProvider_MockedRunnerResolution(t *testing.T) {
	t.Parallel()

	runner := &launchtest.Runner{}
	runner.Test(t)

	runner.On("Run", mock.Anything, "java -version", mock.Anything).
		Run(launchtest.WriteOutput("openjdk version \"17.0.2\"\n")).
		Return(0, nil).
		Once()

	java, err := jdk.Resolve(context.Background(), runner, nil, jdk.Env{}, jdk.Options{}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "java", java)
	runner.AssertExpectations(t)
}
