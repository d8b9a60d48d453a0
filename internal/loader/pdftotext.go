package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH (install poppler-utils)")

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// pdftotextLoader shells out to poppler. Its -layout mode keeps columns
// and tables readable, which the native reader does not.
type pdftotextLoader struct {
	runner CommandRunner
}

func NewPDFToText(runner CommandRunner) Loader {
	return &pdftotextLoader{runner: runner}
}

func (l *pdftotextLoader) Load(ctx context.Context, filename string, r io.Reader) (*Document, error) {
	tmp, err := os.CreateTemp("", "docchat-*.pdf")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	out, err := l.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed for %s: %w", filename, err)
	}
	return &Document{Source: filename, Pages: splitPages(string(out))}, nil
}

// splitPages cuts pdftotext output on form feeds, which it emits after
// every page.
func splitPages(out string) []Page {
	parts := strings.Split(out, "\f")
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, Page{Number: i + 1, Text: part})
	}
	return pages
}
