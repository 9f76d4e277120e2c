package corpus

import (
	"context"
	"fmt"

	"github.com/sirosfoundation/linesearch/internal/domain"
)

// Live re-reads the corpus file on every query. It holds no state besides the
// path, so concurrent queries each perform their own independent read.
type Live struct {
	path string
}

// NewLive creates a Live store for path. The file is not opened until the
// first query.
func NewLive(path string) *Live {
	return &Live{path: path}
}

// Exists opens and scans the corpus, stopping at the first exact match
func (l *Live) Exists(ctx context.Context, line string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrCorpusUnavailable, err)
	}

	found := false
	err := eachLine(l.path, func(candidate []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		if string(candidate) == line {
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	if !found {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("%w: %w", domain.ErrCorpusUnavailable, err)
		}
	}
	return found, nil
}

// Policy returns PolicyLive
func (l *Live) Policy() Policy {
	return PolicyLive
}

// Stats returns the live store description
func (l *Live) Stats() Stats {
	return Stats{
		Policy: PolicyLive,
		Path:   l.path,
	}
}
