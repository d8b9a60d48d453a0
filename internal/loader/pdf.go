package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	PDFEngineNative    = "native"
	PDFEnginePDFToText = "pdftotext"
)

// pdfLoader extracts text in-process, one Page per PDF page.
type pdfLoader struct{}

func NewPDF() Loader {
	return &pdfLoader{}
}

func (l *pdfLoader) Load(ctx context.Context, filename string, r io.Reader) (doc *Document, err error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	// the parser panics on some malformed files
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, fmt.Errorf("parse pdf %s: %v", filename, rec)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf %s: %w", filename, err)
	}
	fonts := make(map[string]*pdf.Font)
	total := reader.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract page %d of %s: %w", i, filename, err)
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(text)})
	}
	return &Document{Source: filename, Pages: pages}, nil
}
