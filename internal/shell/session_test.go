//go:build unix

package shell

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/bashautom/internal/process"
)

func requireBash(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	return path
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	bash := requireBash(t)

	opts = append([]Option{WithShell(bash), WithCloseTimeout(2 * time.Second)}, opts...)
	s, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func realPath(t *testing.T, p string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return resolved
}

func TestSession_Echo(t *testing.T) {
	s := newTestSession(t)

	res, err := s.Execute(context.Background(), "echo hello")
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Success())
	assert.False(t, res.TimedOut)
	assert.Equal(t, "echo hello", res.Command)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestSession_StreamsSeparated(t *testing.T) {
	s := newTestSession(t)

	res, err := s.Execute(context.Background(), "echo out; echo err >&2; echo out2")
	require.NoError(t, err)

	assert.Equal(t, "out\nout2", res.Stdout)
	assert.Equal(t, "err", res.Stderr)
}

func TestSession_ExitCodes(t *testing.T) {
	s := newTestSession(t)

	tests := []struct {
		command string
		code    int
	}{
		{command: "true", code: 0},
		{command: "false", code: 1},
		{command: "(exit 42)", code: 42},
		{command: "nonexistent-command-xyz", code: 127},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			res, err := s.Execute(context.Background(), tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.code, res.ExitCode)
			assert.Equal(t, tt.code == 0, res.Success())
		})
	}
}

func TestSession_StatePersists(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	dir := realPath(t, t.TempDir())

	_, err := s.Execute(ctx, "cd "+quote(dir))
	require.NoError(t, err)
	_, err = s.Execute(ctx, "export GREETING=hi; count=3")
	require.NoError(t, err)

	res, err := s.Execute(ctx, `pwd -P; echo "$GREETING $count"`)
	require.NoError(t, err)
	assert.Equal(t, dir+"\nhi 3", res.Stdout)
}

func TestSession_OutputWithoutNewline(t *testing.T) {
	s := newTestSession(t, WithRawOutput())

	res, err := s.Execute(context.Background(), "printf abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Stdout)

	res, err = s.Execute(context.Background(), "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Stdout)
}

func TestSession_EmptyOutput(t *testing.T) {
	s := newTestSession(t)

	res, err := s.Execute(context.Background(), ":")
	require.NoError(t, err)
	assert.Empty(t, res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.True(t, res.Success())
}

func TestSession_LargeOutput(t *testing.T) {
	s := newTestSession(t)

	res, err := s.Execute(context.Background(), "head -c 1000000 /dev/zero | tr '\\0' a")
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 1000000)
	assert.Equal(t, strings.Repeat("a", 1000000), res.Stdout)
}

func TestSession_StdinIsolated(t *testing.T) {
	s := newTestSession(t)

	res, err := s.Execute(context.Background(), `read -r line; echo "got:$line"`)
	require.NoError(t, err)
	assert.Equal(t, "got:", res.Stdout)

	res, err = s.Execute(context.Background(), "echo still here")
	require.NoError(t, err)
	assert.Equal(t, "still here", res.Stdout)
}

func TestSession_MarkerLookalikeIsOutput(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	res, err := s.Execute(ctx, "echo __BASHAUTOM_deadbeef_1_abc:0")
	require.NoError(t, err)
	assert.Equal(t, "__BASHAUTOM_deadbeef_1_abc:0", res.Stdout)

	// Same tag and sequence as the live marker, wrong nonce
	forged := fmt.Sprintf("%s%s_%d_%s:0", markerPrefix, s.tag, s.seq.Load()+1, "forged")
	res, err = s.Execute(ctx, fmt.Sprintf("printf '\\n%%s\\nafter\\n' %s; exit_status=4; (exit $exit_status)", quote(forged)))
	require.NoError(t, err)
	assert.Equal(t, forged+"\nafter", res.Stdout)
	assert.Equal(t, 4, res.ExitCode)
}

func TestSession_Timeout(t *testing.T) {
	s := newTestSession(t, WithGracePeriod(100*time.Millisecond))
	ctx := context.Background()

	start := time.Now()
	res, err := s.Execute(ctx, "echo started; sleep 30", WithTimeout(300*time.Millisecond))
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.False(t, res.Success())
	assert.Equal(t, "started", res.Stdout)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The shell survives
	assert.True(t, s.Alive())
	res, err = s.Execute(ctx, "echo ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)
}

func TestSession_TimeoutKillsIgnoringJob(t *testing.T) {
	s := newTestSession(t, WithGracePeriod(100*time.Millisecond))
	ctx := context.Background()

	res, err := s.Execute(ctx, `bash -c 'trap "" INT; sleep 30'`, WithTimeout(200*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.TimedOut)

	res, err = s.Execute(ctx, "echo after")
	require.NoError(t, err)
	assert.Equal(t, "after", res.Stdout)
}

func TestSession_DefaultTimeout(t *testing.T) {
	s := newTestSession(t, WithDefaultTimeout(200*time.Millisecond), WithGracePeriod(50*time.Millisecond))

	res, err := s.Execute(context.Background(), "sleep 30")
	require.NoError(t, err)
	assert.True(t, res.TimedOut)

	res, err = s.Execute(context.Background(), "sleep 30", WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
}

func TestSession_ContextCancel(t *testing.T) {
	s := newTestSession(t, WithGracePeriod(100*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res, err := s.Execute(ctx, "sleep 30")
	require.NoError(t, err)
	assert.True(t, res.TimedOut)

	_, err = s.Execute(ctx, "echo never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	res, err = s.Execute(context.Background(), "echo ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)
}

func TestSession_ExitClosesSession(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	res, err := s.Execute(ctx, "echo bye; exit 7")
	require.ErrorIs(t, err, ErrSessionClosed)
	require.NotNil(t, res)

	assert.Equal(t, 7, res.ExitCode)
	assert.True(t, res.SessionClosed)
	assert.False(t, res.Success())
	assert.Equal(t, "bye", res.Stdout)

	assert.False(t, s.Alive())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}

	res, err = s.Execute(ctx, "echo again")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Nil(t, res)

	_, err = s.GetCwd(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_Close(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.Close())
	assert.False(t, s.Alive())
	assert.NoError(t, s.Close())

	_, err := s.Execute(context.Background(), "echo hi")
	assert.ErrorIs(t, err, ErrSessionClosed)

	ok, err := s.SendSignal(syscall.SIGINT)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.Contains(t, s.String(), "[closed]")
}

func TestSession_CloseWhileRunning(t *testing.T) {
	s := newTestSession(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Execute(context.Background(), "sleep 30")
	}()

	require.Eventually(t, s.Busy, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, s.Close())
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after Close")
	}
}

func TestSession_Observer(t *testing.T) {
	s := newTestSession(t, WithRawOutput())

	var mu sync.Mutex
	var stdout, stderr strings.Builder
	var events int
	observer := func(ev StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		events++
		switch ev.Stream {
		case StreamStdout:
			stdout.WriteString(ev.Data)
		case StreamStderr:
			stderr.WriteString(ev.Data)
		}
		assert.False(t, ev.Timestamp.IsZero())
	}

	res, err := s.Execute(context.Background(),
		"for i in 1 2 3; do echo $i; echo e$i >&2; sleep 0.05; done",
		WithObserver(observer))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, events, 2)
	assert.Equal(t, res.Stdout, stdout.String())
	assert.Equal(t, res.Stderr, stderr.String())
	assert.Equal(t, "1\n2\n3\n", stdout.String())
	assert.NotContains(t, stdout.String(), markerPrefix)
	assert.NotContains(t, stderr.String(), markerPrefix)
}

func TestSession_ConcurrentExecuteSerialized(t *testing.T) {
	s := newTestSession(t)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*CommandResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Execute(context.Background(), fmt.Sprintf("echo job-%d", i))
		}(i)
	}
	wg.Wait()

	seqs := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("job-%d", i), results[i].Stdout)
		assert.False(t, seqs[results[i].Seq], "duplicate sequence")
		seqs[results[i].Seq] = true
	}
	assert.Equal(t, uint64(n), s.Commands())
}

func TestSession_SendSignal(t *testing.T) {
	s := newTestSession(t)

	ok, err := s.SendSignal(syscall.SIGINT)
	require.NoError(t, err)
	assert.False(t, ok, "nothing running")

	type outcome struct {
		res *CommandResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Execute(context.Background(), "sleep 30")
		done <- outcome{res, err}
	}()

	require.Eventually(t, func() bool {
		if !s.Busy() {
			return false
		}
		pids, err := process.Descendants(s.PID())
		return err == nil && len(pids) > 0
	}, 2*time.Second, 10*time.Millisecond)

	ok, err = s.SendSignal(syscall.SIGINT)
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.NotEqual(t, 0, out.res.ExitCode)
		assert.False(t, out.res.TimedOut)
	case <-time.After(5 * time.Second):
		t.Fatal("signalled command did not finish")
	}

	assert.True(t, s.Alive())
	res, err := s.Execute(context.Background(), "echo alive")
	require.NoError(t, err)
	assert.Equal(t, "alive", res.Stdout)
}

func TestSession_BackgroundJobDoesNotBlock(t *testing.T) {
	s := newTestSession(t)

	start := time.Now()
	res, err := s.Execute(context.Background(), "sleep 30 >/dev/null 2>&1 &")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// startBackgroundJob leaves a sleep running behind the shell and returns its PID.
func startBackgroundJob(t *testing.T, s *Session) int {
	t.Helper()
	res, err := s.Execute(context.Background(), "sleep 100 >/dev/null 2>&1 & echo $!")
	require.NoError(t, err)
	pid, err := strconv.Atoi(res.Stdout)
	require.NoError(t, err)
	require.NoError(t, syscall.Kill(pid, 0))
	return pid
}

func TestSession_SignalSparesBackgroundJobs(t *testing.T) {
	s := newTestSession(t)
	bg := startBackgroundJob(t, s)

	done := make(chan *CommandResult, 1)
	go func() {
		res, _ := s.Execute(context.Background(), "sleep 30")
		done <- res
	}()

	// The background sleep plus the foreground one
	require.Eventually(t, func() bool {
		pids, err := process.Descendants(s.PID())
		return s.Busy() && err == nil && len(pids) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	ok, err := s.SendSignal(syscall.SIGTERM)
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case res := <-done:
		assert.Equal(t, 143, res.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("signalled command did not finish")
	}
	assert.NoError(t, syscall.Kill(bg, 0), "background job was signalled")
}

func TestSession_TimeoutKillSparesBackgroundJobs(t *testing.T) {
	s := newTestSession(t)
	bg := startBackgroundJob(t, s)

	res, err := s.Execute(context.Background(), `bash -c 'trap "" INT; sleep 30'`, WithTimeout(300*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.TimedOut)

	assert.NoError(t, syscall.Kill(bg, 0), "background job was killed")

	res, err = s.Execute(context.Background(), "echo ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)
}

func TestSession_Env(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, set, err := s.GetEnv(ctx, "BASHAUTOM_TEST_UNSET")
	require.NoError(t, err)
	assert.False(t, set)

	values := []string{
		"plain",
		"",
		"it's got 'quotes'",
		`$HOME and $(echo nope) and ` + "`x`",
		"multi\nline",
		"  spaced  ",
	}
	for _, v := range values {
		require.NoError(t, s.SetEnv(ctx, "BASHAUTOM_TEST", v))
		got, set, err := s.GetEnv(ctx, "BASHAUTOM_TEST")
		require.NoError(t, err)
		assert.True(t, set)
		assert.Equal(t, v, got)
	}

	res, err := s.Execute(ctx, `bash -c 'echo "$BASHAUTOM_TEST"'`)
	require.NoError(t, err)
	assert.Equal(t, "spaced", res.Stdout, "exported to children")

	require.NoError(t, s.UnsetEnv(ctx, "BASHAUTOM_TEST"))
	_, set, err = s.GetEnv(ctx, "BASHAUTOM_TEST")
	require.NoError(t, err)
	assert.False(t, set)
}

func TestSession_EnvValidation(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	for _, name := range []string{"", "1ABC", "A-B", "A B", "A;rm -rf /", "$X"} {
		assert.ErrorIs(t, s.SetEnv(ctx, name, "v"), ErrInvalidName, "name %q", name)
		_, _, err := s.GetEnv(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
		assert.ErrorIs(t, s.UnsetEnv(ctx, name), ErrInvalidName, "name %q", name)
	}

	assert.ErrorIs(t, s.SetEnv(ctx, "OK", "a\x00b"), ErrInvalidValue)
}

func TestSession_Cwd(t *testing.T) {
	dir := realPath(t, t.TempDir())
	s := newTestSession(t, WithDir(dir))
	ctx := context.Background()

	assert.Equal(t, dir, realPath(t, s.Cwd()))

	sub := filepath.Join(dir, "with space")
	_, err := s.Execute(ctx, "mkdir "+quote(sub))
	require.NoError(t, err)

	got, err := s.Chdir(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, sub, realPath(t, got))
	assert.Equal(t, got, s.Cwd())

	_, err = s.Execute(ctx, "cd ..")
	require.NoError(t, err)
	assert.Equal(t, got, s.Cwd(), "Cwd is a cached value")

	got, err = s.GetCwd(ctx)
	require.NoError(t, err)
	assert.Equal(t, dir, realPath(t, got))
	assert.Equal(t, got, s.Cwd())

	_, err = s.Chdir(ctx, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrStateQuery)
	assert.True(t, s.Alive())
}

func TestSession_WithEnv(t *testing.T) {
	s := newTestSession(t, WithEnv(map[string]string{"BASHAUTOM_FROM_OPTION": "yes"}))

	val, set, err := s.GetEnv(context.Background(), "BASHAUTOM_FROM_OPTION")
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, "yes", val)
}

func TestSession_ResultHook(t *testing.T) {
	var calls atomic.Int32
	s := newTestSession(t, WithResultHook(func(name string, res *CommandResult) {
		assert.NotEmpty(t, name)
		calls.Add(1)
	}))
	ctx := context.Background()

	_, err := s.Execute(ctx, "echo one")
	require.NoError(t, err)
	_, err = s.GetCwd(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "state queries are not reported")
}

func TestSession_Names(t *testing.T) {
	named := newTestSession(t, WithName("build"))
	assert.Equal(t, "build", named.Name())
	assert.Contains(t, named.String(), `"build"`)
	assert.Contains(t, named.String(), "[alive]")

	generated := newTestSession(t)
	assert.True(t, strings.HasPrefix(generated.Name(), "sess_"))
	assert.NotEqual(t, named.PID(), generated.PID())
}

func TestNew_SpawnFailure(t *testing.T) {
	_, err := New(context.Background(), WithShell("/nonexistent/bash"))
	assert.ErrorIs(t, err, ErrSpawn)

	falseBin, lookErr := exec.LookPath("false")
	if lookErr != nil {
		t.Skip("false not available")
	}
	_, err = New(context.Background(), WithShell(falseBin), WithCloseTimeout(time.Second))
	assert.ErrorIs(t, err, ErrSpawn)
}

func TestBuildEnv(t *testing.T) {
	assert.Nil(t, buildEnv(defaultConfig()))

	cfg := defaultConfig()
	cfg.inheritEnv = false
	cfg.env = map[string]string{"B": "2", "A": "1"}
	assert.Equal(t, []string{"A=1", "B=2"}, buildEnv(cfg))

	t.Setenv("BASHAUTOM_INHERITED", "x")
	cfg = defaultConfig()
	cfg.env = map[string]string{"BASHAUTOM_INHERITED": "override"}
	env := buildEnv(cfg)
	assert.Contains(t, env, "BASHAUTOM_INHERITED=override")
	assert.NotContains(t, env, "BASHAUTOM_INHERITED=x")
}

func TestShellArgs(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, []string{"--norc", "--noprofile"}, cfg.shellArgs())

	WithShell("/bin/sh")(&cfg)
	assert.Nil(t, cfg.shellArgs())

	WithShell("", "-i")(&cfg)
	assert.Equal(t, "/bin/sh", cfg.shell)
	assert.Equal(t, []string{"-i"}, cfg.shellArgs())
}
