package loader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type textLoader struct{}

func NewText() Loader {
	return textLoader{}
}

func (textLoader) Load(ctx context.Context, filename string, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid utf-8 text", filename)
	}
	return &Document{
		Source: filename,
		Pages:  []Page{{Text: strings.ReplaceAll(string(data), "\r\n", "\n")}},
	}, nil
}
