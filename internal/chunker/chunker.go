// Package chunker splits extracted document text into overlapping,
// bounded-size chunks suitable for embedding.
//
// Chunks are exact substrings of the input. Consecutive chunks share exactly
// the configured overlap, so dropping the first overlap characters of every
// chunk after the first and concatenating reconstructs the original text.
// Lengths are measured in characters (runes), not bytes.
package chunker

const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 1000
	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 100
)

// separators lists the natural boundaries a chunk may end on, most preferred
// first. A chunk ends immediately after the separator.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// Splitter holds a chunk size and overlap for repeated use.
type Splitter struct {
	// size is the maximum chunk length in characters.
	size int
	// overlap is the number of characters repeated at the start of the next chunk.
	overlap int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(n int) Option {
	return func(s *Splitter) { s.size = n }
}

// WithOverlap sets the number of characters shared by consecutive chunks.
func WithOverlap(n int) Option {
	return func(s *Splitter) { s.overlap = n }
}

// New constructs a Splitter. Unset or invalid values fall back to the
// package defaults.
func New(opts ...Option) *Splitter {
	s := &Splitter{size: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(s)
	}
	s.size, s.overlap = normalize(s.size, s.overlap)
	return s
}

// Size returns the effective chunk size.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the effective overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split splits text using the splitter's settings.
func (s *Splitter) Split(text string) []string {
	return Split(text, s.size, s.overlap)
}

// Split divides text into chunks of at most size characters, each sharing
// overlap characters with its predecessor. It prefers to end a chunk on a
// paragraph, line, sentence, or word boundary and falls back to a hard cut.
// An empty string yields no chunks; any other input yields at least one.
func Split(text string, size, overlap int) []string {
	size, overlap = normalize(size, overlap)

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		if len(runes)-start <= size {
			return append(chunks, string(runes[start:]))
		}
		cut := breakPoint(runes, start, start+size, overlap)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - overlap
	}
}

// normalize applies defaults to out-of-range parameters.
func normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return size, overlap
}

// breakPoint returns the exclusive end of the chunk starting at start whose
// hard limit is end. Natural boundaries are only used when the resulting
// chunk keeps at least half the window and still advances past the overlap.
func breakPoint(runes []rune, start, end, overlap int) int {
	minCut := start + max((end-start)/2, overlap+1)
	if minCut > end {
		return end
	}
	for _, sep := range separators {
		for i := end - len(sep); i+len(sep) >= minCut && i >= start; i-- {
			if hasPrefixAt(runes, i, sep) {
				return i + len(sep)
			}
		}
	}
	return end
}

// hasPrefixAt reports whether runes[i:] begins with sep.
func hasPrefixAt(runes []rune, i int, sep []rune) bool {
	if i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
