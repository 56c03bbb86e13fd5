// Package id provides ID generation for clone jobs and stream sessions.
//
// IDs are prefixed ULIDs: lexicographically sortable by creation time and
// readable in logs (clone_01J..., strm_01J...).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// CloneID identifies one clone request end to end
type CloneID string

// StreamID identifies a websocket clone stream
type StreamID string

const (
	ClonePrefix  = "clone"
	StreamPrefix = "strm"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewCloneID generates a new clone ID
func NewCloneID() CloneID {
	return CloneID(Default().GenerateWithPrefix(ClonePrefix))
}

// NewStreamID generates a new stream ID
func NewStreamID() StreamID {
	return StreamID(Default().GenerateWithPrefix(StreamPrefix))
}

func (id CloneID) String() string  { return string(id) }
func (id StreamID) String() string { return string(id) }

// IsValid checks if a string is a ULID, with or without a known prefix
func IsValid(id string) bool {
	if i := strings.LastIndex(id, "_"); i >= 0 {
		id = id[i+1:]
	}
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from a (prefixed) ULID
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndex(id, "_"); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
