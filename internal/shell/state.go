package shell

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// query runs an internal command and returns its raw stdout.
// A non-zero exit or a timeout is reported as ErrStateQuery.
func (s *Session) query(ctx context.Context, command string) (string, error) {
	res, err := s.run(ctx, command, execOptions{timeout: s.cfg.defaultTimeout})
	if err != nil {
		return "", err
	}
	if res.TimedOut {
		return "", fmt.Errorf("%w: %q timed out", ErrStateQuery, command)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: %q exited %d: %s", ErrStateQuery, command, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// lastLine returns the final non-empty line of out.
func lastLine(out string) string {
	out = strings.TrimRight(out, "\r\n")
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		return out[i+1:]
	}
	return out
}

// GetCwd asks the shell for its working directory and refreshes the value
// returned by Cwd.
func (s *Session) GetCwd(ctx context.Context) (string, error) {
	out, err := s.query(ctx, "pwd")
	if err != nil {
		return "", err
	}
	dir := lastLine(out)
	s.setCwd(dir)
	return dir, nil
}

// Chdir changes the shell's working directory and returns the new one.
func (s *Session) Chdir(ctx context.Context, dir string) (string, error) {
	if strings.ContainsRune(dir, 0) {
		return "", fmt.Errorf("%w: directory contains NUL", ErrInvalidValue)
	}
	out, err := s.query(ctx, "cd -- "+quote(dir)+" && pwd")
	if err != nil {
		return "", err
	}
	cwd := lastLine(out)
	s.setCwd(cwd)
	return cwd, nil
}

// GetEnv returns the value of a shell variable. The boolean is false when
// the variable is unset; a variable set to the empty string reports true.
func (s *Session) GetEnv(ctx context.Context, name string) (string, bool, error) {
	if err := validateName(name); err != nil {
		return "", false, err
	}
	cmd := fmt.Sprintf(`if [ -n "${%[1]s+x}" ]; then command printf '+%%s' "$%[1]s"; else command printf '%%s' '-'; fi`, name)
	out, err := s.query(ctx, cmd)
	if err != nil {
		return "", false, err
	}
	switch {
	case strings.HasPrefix(out, "+"):
		return out[1:], true, nil
	case out == "-":
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: unexpected reply %q for %s", ErrStateQuery, out, name)
	}
}

// SetEnv exports a variable in the shell. The value is passed literally;
// no expansion takes place.
func (s *Session) SetEnv(ctx context.Context, name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%w: value of %s contains NUL", ErrInvalidValue, name)
	}
	_, err := s.query(ctx, "export "+name+"="+quote(value))
	return err
}

// UnsetEnv removes a variable from the shell.
func (s *Session) UnsetEnv(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	_, err := s.query(ctx, "unset -v "+name)
	return err
}

func validateName(name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
