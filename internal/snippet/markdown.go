package snippet

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ParseMarkdown returns the fenced code blocks of src in document order.
// Indented code blocks carry no language and are skipped.
func ParseMarkdown(src []byte) []Fragment {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var fragments []Fragment
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var body bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			body.Write(seg.Value(src))
		}
		fragments = append(fragments, Fragment{
			Lang: string(block.Language(src)),
			Text: body.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return fragments
}
