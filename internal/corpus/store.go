// Package corpus answers exact-line membership questions against a text file.
//
// Two refresh policies are provided:
//   - Snapshot: the file is read once by Load and held as an immutable set;
//     Exists never touches the filesystem.
//   - Live: nothing is cached; every Exists re-reads the file.
//
// Membership is exact equality against a whole line. Line terminators are
// "\n", "\r\n" and a lone "\r"; no other trimming is applied to corpus lines.
package corpus

import (
	"context"
	"fmt"

	"github.com/sirosfoundation/linesearch/pkg/config"
)

// Policy names a refresh policy
type Policy string

const (
	PolicySnapshot Policy = "snapshot"
	PolicyLive     Policy = "live"
)

// Store answers whether a line exists in the corpus.
// Implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether line is exactly one of the corpus lines.
	// A returned error wraps domain.ErrCorpusUnavailable.
	Exists(ctx context.Context, line string) (bool, error)

	// Policy returns the refresh policy of this store
	Policy() Policy

	// Stats describes the corpus for status reporting
	Stats() Stats
}

// Stats describes the corpus backing a store
type Stats struct {
	Policy Policy `json:"policy"`
	Path   string `json:"path"`

	// Lines and Fingerprint are only known for a snapshot
	Lines       int    `json:"lines,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// New creates the store selected by the corpus configuration. Under the
// snapshot policy the file is loaded here, so a missing or unreadable corpus
// fails startup.
func New(cfg config.CorpusConfig) (Store, error) {
	if cfg.RereadOnQuery {
		return NewLive(cfg.Path), nil
	}

	snapshot, err := Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus snapshot: %w", err)
	}
	return snapshot, nil
}
