package corpus

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/sirosfoundation/linesearch/internal/domain"
)

// maxLineBytes bounds a single corpus line held by the scanner
const maxLineBytes = 16 * 1024 * 1024

// openCorpus opens path for reading, transparently decompressing .gz and
// .zst files. The returned closer releases the file and any decoder.
func openCorpus(path string) (io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrCorpusUnavailable, err)
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("%w: failed to open gzip stream: %w", domain.ErrCorpusUnavailable, err)
		}
		return zr, func() error {
			_ = zr.Close()
			return f.Close()
		}, nil

	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("%w: failed to open zstd stream: %w", domain.ErrCorpusUnavailable, err)
		}
		return zr, func() error {
			zr.Close()
			return f.Close()
		}, nil

	default:
		return f, f.Close, nil
	}
}

// scanLines splits on "\n", "\r\n" or a lone "\r" and strips the terminator.
// A trailing terminator does not produce an empty final line.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// '\r': need one more byte to tell "\r\n" from a lone "\r"
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// eachLine calls fn for every line of the corpus at path until fn returns
// false. Errors wrap domain.ErrCorpusUnavailable.
func eachLine(path string, fn func(line []byte) bool) error {
	r, closeFn, err := openCorpus(path)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanLines)

	for scanner.Scan() {
		if !fn(scanner.Bytes()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: failed to read %s: %w", domain.ErrCorpusUnavailable, path, err)
	}
	return nil
}
