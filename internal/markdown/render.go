// Package markdown renders OCR markdown output as HTML for the browser
// preview. GitHub-flavored tables are enabled and TeX formulas are turned
// into MathML.
package markdown

import (
	"bytes"
	"fmt"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// Renderer converts markdown to HTML. It is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a Renderer. Raw HTML in the source is kept because the
// recognizer emits tables and image tags as HTML.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				treeblood.MathML(),
			),
			goldmark.WithParserOptions(
				parser.WithASTTransformers(util.Prioritized(imagePrefixer{}, 1000)),
			),
			goldmark.WithRendererOptions(
				html.WithUnsafe(),
			),
		),
	}
}

// Render returns the HTML fragment for src.
func (r *Renderer) Render(src []byte) ([]byte, error) {
	return r.RenderUnder(src, "")
}

// RenderUnder returns the HTML fragment for src with every relative image
// source, in markdown or raw <img> tags, prefixed by dir. It lets several
// markdown files from different directories share one page.
func (r *Renderer) RenderUnder(src []byte, dir string) ([]byte, error) {
	pc := parser.NewContext()
	pc.Set(imagePrefixKey, dir)

	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf, parser.WithContext(pc)); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}
