package loader

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// Page is one page of extracted text. Number is 1-based; 0 means the
// source format has no pages.
type Page struct {
	Number int
	Text   string
}

type Document struct {
	Source string
	Pages  []Page
}

type Loader interface {
	Load(ctx context.Context, filename string, r io.Reader) (*Document, error)
}

// Registry dispatches on the lower-cased file extension.
type Registry struct {
	byExt map[string]Loader
}

type Option func(*Registry)

func WithLoader(ext string, l Loader) Option {
	return func(r *Registry) {
		r.byExt[strings.ToLower(ext)] = l
	}
}

// WithPDFEngine picks the PDF extractor: PDFEngineNative (default) or
// PDFEnginePDFToText.
func WithPDFEngine(engine string) Option {
	return func(r *Registry) {
		if engine == PDFEnginePDFToText {
			r.byExt[".pdf"] = NewPDFToText(ExecRunner{})
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{byExt: make(map[string]Loader)}
	md := NewMarkdown()
	r.byExt[".pdf"] = NewPDF()
	r.byExt[".md"] = md
	r.byExt[".markdown"] = md
	r.byExt[".txt"] = NewText()
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Supports(filename string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func (r *Registry) Load(ctx context.Context, filename string, rd io.Reader) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	l, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", appErr.ErrDocumentLoad, ext)
	}
	doc, err := l.Load(ctx, filename, rd)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrDocumentLoad, err)
	}
	return doc, nil
}
