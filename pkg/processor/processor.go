// Package processor turns raw document bytes into ordered text chunks
// ready for embedding and indexing.
package processor

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Chunk is one bounded span of extracted text. StartWord/EndWord are
// word offsets into the full extracted text. The structural fields
// (Type, PageNumber, TableID, FigureID) are optional and empty for the
// builtin engine.
type Chunk struct {
	Content    string
	TokenCount int
	StartWord  int
	EndWord    int

	Type       string
	PageNumber int
	TableID    string
	FigureID   string
}

// Result is the outcome of processing one document. Chunks preserve
// document order; Metadata carries at least "processing_engine".
type Result struct {
	Chunks   []Chunk
	Metadata map[string]any
}

// Processor converts raw file bytes plus a file name into a Result.
type Processor interface {
	Process(content []byte, fileName string) (*Result, error)
}

// engineName identifies the builtin extraction/chunking pipeline in
// chunk and document metadata.
const engineName = "builtin"

// TextProcessor is the default Processor: text extraction by file
// extension followed by overlapping word-window chunking.
type TextProcessor struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a TextProcessor with the given window size and overlap
// (both in words). Invalid values fall back to 300/50.
func New(chunkSize, chunkOverlap int) *TextProcessor {
	if chunkSize <= 0 {
		chunkSize = 300
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 50
		if chunkOverlap >= chunkSize {
			chunkOverlap = chunkSize / 4
		}
	}
	return &TextProcessor{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Process extracts text from content and splits it into chunks.
// Returns an error if extraction fails or yields no text.
func (p *TextProcessor) Process(content []byte, fileName string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	text, err := extractText(content, ext)
	if err != nil {
		return nil, errors.Wrapf(err, "extract %s", fileName)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.Errorf("no text content in %s", fileName)
	}

	chunks := p.chunk(text)

	return &Result{
		Chunks: chunks,
		Metadata: map[string]any{
			"processing_engine": engineName,
			"word_count":        wordCount(text),
		},
	}, nil
}

// chunk splits text into overlapping word windows. Chunk indices are
// implied by slice order; the caller assigns them.
func (p *TextProcessor) chunk(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := p.chunkSize - p.chunkOverlap
	if step <= 0 {
		step = 1
	}

	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := start + p.chunkSize
		if end > len(words) {
			end = len(words)
		}
		window := words[start:end]
		chunks = append(chunks, Chunk{
			Content:    strings.Join(window, " "),
			TokenCount: len(window),
			StartWord:  start,
			EndWord:    end,
			Type:       "text",
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
