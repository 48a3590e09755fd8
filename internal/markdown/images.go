package markdown

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var imagePrefixKey = parser.NewContextKey()

var imgSrcPattern = regexp.MustCompile(`(?i)(<img\b[^>]*?\ssrc\s*=\s*)("[^"]*"|'[^']*')`)

// imagePrefixer rewrites relative image destinations with the prefix stored
// under imagePrefixKey. Raw HTML holding an <img> is replaced by a raw string
// node carrying the rewritten markup.
type imagePrefixer struct{}

func (imagePrefixer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	prefix, _ := pc.Get(imagePrefixKey).(string)
	if prefix == "" {
		return
	}
	source := reader.Source()

	type replacement struct {
		old ast.Node
		raw []byte
	}
	var replacements []replacement

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Image:
			node.Destination = []byte(prefixed(prefix, string(node.Destination)))
		case *ast.RawHTML:
			var raw []byte
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				raw = append(raw, seg.Value(source)...)
			}
			if out, ok := rewriteImgTags(prefix, raw); ok {
				replacements = append(replacements, replacement{node, out})
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			var raw []byte
			for i := 0; i < node.Lines().Len(); i++ {
				line := node.Lines().At(i)
				raw = append(raw, line.Value(source)...)
			}
			if node.HasClosure() {
				raw = append(raw, node.ClosureLine.Value(source)...)
			}
			if out, ok := rewriteImgTags(prefix, raw); ok {
				replacements = append(replacements, replacement{node, out})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, r := range replacements {
		s := ast.NewString(r.raw)
		s.SetRaw(true)
		r.old.Parent().ReplaceChild(r.old.Parent(), r.old, s)
	}
}

func rewriteImgTags(prefix string, raw []byte) ([]byte, bool) {
	changed := false
	out := imgSrcPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		sub := imgSrcPattern.FindSubmatch(m)
		quoted := string(sub[2])
		quote, src := quoted[:1], quoted[1:len(quoted)-1]
		next := prefixed(prefix, src)
		if next == src {
			return m
		}
		changed = true
		return []byte(string(sub[1]) + quote + next + quote)
	})
	return out, changed
}

// prefixed joins prefix and dest when dest is a relative path. URLs with a
// scheme, absolute paths and fragments are returned unchanged.
func prefixed(prefix, dest string) string {
	if dest == "" || strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "#") {
		return dest
	}
	if u, err := url.Parse(dest); err != nil || u.Scheme != "" {
		return dest
	}
	return prefix + strings.TrimPrefix(dest, "./")
}
