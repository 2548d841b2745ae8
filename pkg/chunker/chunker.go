// Package chunker splits extracted document text into overlapping spans.
//
// Spans are measured in runes, not bytes, so multi-byte characters never get
// split mid-sequence. Consecutive spans overlap by exactly the configured
// overlap, and the final span may be shorter than the configured size so that
// trailing content is never dropped. Chunking is deterministic: the same text
// and configuration always produce the same span sequence, which is what makes
// re-ingestion idempotent.
package chunker

import "fmt"

const (
	// DefaultSize is the default maximum span size in runes.
	DefaultSize = 1500

	// DefaultOverlap is the default overlap between consecutive spans in runes.
	DefaultOverlap = 100
)

// Chunker splits text into fixed-size overlapping spans.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got overlap=%d size=%d", overlap, size)
	}

	return &Chunker{
		size:    size,
		overlap: overlap,
	}, nil
}

// Size returns the configured maximum span size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured span overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into ordered spans of at most size runes where each
// consecutive pair of spans shares exactly overlap runes. Empty text yields
// zero spans.
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	stride := c.size - c.overlap

	var spans []string
	for start := 0; ; start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		spans = append(spans, string(runes[start:end]))

		if end == len(runes) {
			break
		}
	}

	return spans
}
