// Package id provides prefixed ULID generation.
//
// IDs are lexicographically sortable by creation time and carry a short
// prefix naming what they identify (sess_*, req_*, cmd_*), which keeps logs
// readable. Generation is monotonic within a millisecond.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a shell session
type SessionID string

// RequestID identifies an API request
type RequestID string

// CommandID identifies one executed command in history
type CommandID string

const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
	CommandPrefix = "cmd"
)

// ErrMalformed is returned by ParsePrefixed for strings that are not
// <prefix>_<ulid>.
var ErrMalformed = errors.New("malformed id")

// Generator generates ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// ordering inside one millisecond.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a default session name
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewRequestID generates a request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewCommandID generates a history entry ID
func NewCommandID() CommandID {
	return CommandID(Default().GenerateWithPrefix(CommandPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id CommandID) String() string { return string(id) }

// ParsePrefixed splits a prefixed ID into its prefix and ULID.
func ParsePrefixed(s string) (string, ulid.ULID, error) {
	prefix, raw, ok := strings.Cut(s, "_")
	if !ok || prefix == "" {
		return "", ulid.ULID{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	u, err := ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	return prefix, u, nil
}

// Timestamp returns the creation time encoded in a prefixed or bare ID.
func Timestamp(s string) (time.Time, error) {
	u, err := ulid.Parse(s)
	if err != nil {
		_, u, err = ParsePrefixed(s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return ulid.Time(u.Time()), nil
}
