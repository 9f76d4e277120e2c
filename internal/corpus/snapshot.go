package corpus

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is an immutable set of corpus lines assembled once by Load.
// Reads take no locks: the set is never written after construction.
type Snapshot struct {
	path        string
	lines       map[string]struct{}
	fingerprint uint64
}

// Load reads the corpus at path into a Snapshot. A missing or unreadable
// file is returned as an error wrapping domain.ErrCorpusUnavailable.
func Load(path string) (*Snapshot, error) {
	lines := make(map[string]struct{})
	digest := xxhash.New()

	err := eachLine(path, func(line []byte) bool {
		lines[string(line)] = struct{}{}
		_, _ = digest.Write(line)
		_, _ = digest.Write([]byte{'\n'})
		return true
	})
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		path:        path,
		lines:       lines,
		fingerprint: digest.Sum64(),
	}, nil
}

// NewSnapshot builds a Snapshot from in-memory lines
func NewSnapshot(lines []string) *Snapshot {
	set := make(map[string]struct{}, len(lines))
	digest := xxhash.New()
	for _, line := range lines {
		set[line] = struct{}{}
		_, _ = digest.WriteString(line)
		_, _ = digest.Write([]byte{'\n'})
	}
	return &Snapshot{lines: set, fingerprint: digest.Sum64()}
}

// Exists reports whether line is in the snapshot
func (s *Snapshot) Exists(_ context.Context, line string) (bool, error) {
	_, ok := s.lines[line]
	return ok, nil
}

// Policy returns PolicySnapshot
func (s *Snapshot) Policy() Policy {
	return PolicySnapshot
}

// Len returns the number of distinct lines
func (s *Snapshot) Len() int {
	return len(s.lines)
}

// Stats returns snapshot statistics
func (s *Snapshot) Stats() Stats {
	return Stats{
		Policy:      PolicySnapshot,
		Path:        s.path,
		Lines:       len(s.lines),
		Fingerprint: fmt.Sprintf("%016x", s.fingerprint),
	}
}
