package loader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownLoader strips markup and keeps the readable text of each block.
type markdownLoader struct {
	md goldmark.Markdown
}

func NewMarkdown() Loader {
	return &markdownLoader{md: goldmark.New()}
}

func (l *markdownLoader) Load(ctx context.Context, filename string, r io.Reader) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	reader := text.NewReader(src)
	doc := l.md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var txt string
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			txt = blockLines(n, src)
		case *ast.CodeBlock:
			txt = blockLines(n, src)
		default:
			txt = extractText(n, src)
		}
		if txt != "" {
			blocks = append(blocks, txt)
		}
	}
	return &Document{
		Source: filename,
		Pages:  []Page{{Text: strings.Join(blocks, "\n\n")}},
	}, nil
}

func blockLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func extractText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && node != n && sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.AutoLink:
			sb.Write(t.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			sb.WriteString(blockLines(t, src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
