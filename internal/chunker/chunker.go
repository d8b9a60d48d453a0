// Package chunker splits loaded documents into overlapping fixed-size windows.
package chunker

import (
	"strings"

	"github.com/xxxsen/docchat/internal/loader"
	"github.com/xxxsen/docchat/internal/model"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker windows are measured in runes, never splitting a code point.
type Chunker struct {
	chunkSize int
	overlap   int
}

type Option func(*Chunker)

func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.chunkSize }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every page independently so each chunk keeps its page number.
// Position counts chunks across the whole document.
func (c *Chunker) Split(doc *loader.Document) []model.Chunk {
	if doc == nil {
		return nil
	}
	var chunks []model.Chunk
	position := 0
	for _, page := range doc.Pages {
		for _, window := range c.windows(page.Text) {
			chunks = append(chunks, model.Chunk{
				Text:     window,
				Source:   doc.Source,
				Page:     page.Number,
				Position: position,
			})
			position++
		}
	}
	return chunks
}

func (c *Chunker) windows(text string) []string {
	runes := []rune(text)
	step := c.chunkSize - c.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			out = append(out, window)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
