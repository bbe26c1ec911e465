package shell

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults used when no option overrides them.
const (
	DefaultShell        = "/bin/bash"
	DefaultGracePeriod  = 200 * time.Millisecond
	DefaultCloseTimeout = 5 * time.Second
)

// config holds session construction settings.
type config struct {
	name           string
	shell          string
	args           []string
	argsSet        bool
	env            map[string]string
	inheritEnv     bool
	dir            string
	gracePeriod    time.Duration
	closeTimeout   time.Duration
	defaultTimeout time.Duration
	trimOutput     bool
	logger         *zap.Logger
	hooks          []ResultHook
}

func defaultConfig() config {
	return config{
		shell:        DefaultShell,
		inheritEnv:   true,
		gracePeriod:  DefaultGracePeriod,
		closeTimeout: DefaultCloseTimeout,
		trimOutput:   true,
		logger:       zap.NewNop(),
	}
}

// shellArgs returns the arguments the shell is launched with.
// bash is started without rc files unless args were given explicitly.
func (c *config) shellArgs() []string {
	if c.argsSet {
		return c.args
	}
	if filepath.Base(c.shell) == "bash" {
		return []string{"--norc", "--noprofile"}
	}
	return nil
}

// Option configures a Session.
type Option func(*config)

// WithName sets the session name. A prefixed ULID is generated otherwise.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithShell sets the shell executable and, if given, its arguments.
func WithShell(path string, args ...string) Option {
	return func(c *config) {
		if path != "" {
			c.shell = path
		}
		if len(args) > 0 {
			c.args = args
			c.argsSet = true
		}
	}
}

// WithEnv adds environment variables on top of the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(c *config) {
		if c.env == nil {
			c.env = make(map[string]string, len(env))
		}
		for k, v := range env {
			c.env[k] = v
		}
	}
}

// WithoutInheritedEnv starts the shell with only the variables given by WithEnv.
func WithoutInheritedEnv() Option {
	return func(c *config) {
		c.inheritEnv = false
	}
}

// WithDir sets the shell's initial working directory.
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// WithGracePeriod sets how long a timed-out command gets after SIGINT before
// it is killed, and again after the kill before a result is synthesized.
func WithGracePeriod(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.gracePeriod = d
		}
	}
}

// WithCloseTimeout sets how long Close waits for the shell to exit on its
// own before killing its process group.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.closeTimeout = d
		}
	}
}

// WithDefaultTimeout applies a timeout to every command that does not set
// its own. Zero means no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *config) {
		c.defaultTimeout = d
	}
}

// WithRawOutput keeps surrounding whitespace in Stdout and Stderr.
func WithRawOutput() Option {
	return func(c *config) {
		c.trimOutput = false
	}
}

// WithLogger sets the logger. Sessions are silent by default.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ResultHook receives the session name and each result returned by Execute.
type ResultHook func(session string, res *CommandResult)

// WithResultHook registers a hook. Hooks run on the caller's goroutine
// before Execute returns and must not modify the result.
func WithResultHook(fn ResultHook) Option {
	return func(c *config) {
		if fn != nil {
			c.hooks = append(c.hooks, fn)
		}
	}
}

// execOptions holds per-command settings.
type execOptions struct {
	timeout  time.Duration
	observer Observer
}

// ExecOption configures a single Execute call.
type ExecOption func(*execOptions)

// WithTimeout bounds how long the command may run. Zero means no timeout.
func WithTimeout(d time.Duration) ExecOption {
	return func(o *execOptions) {
		o.timeout = d
	}
}

// ParseTimeout accepts a Go duration ("1m30s") or seconds ("2.5").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, s)
		}
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// WithObserver streams the command's output to fn as it arrives.
func WithObserver(fn Observer) ExecOption {
	return func(o *execOptions) {
		o.observer = fn
	}
}
