// Package textnorm turns note HTML into plain text suitable for tokenization.
package textnorm

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Head:     true,
	atom.Noscript: true,
	atom.Template: true,
}

// breaking elements start a new line when opened or closed.
var breaking = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Li: true,
	atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Table: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Pre: true, atom.Blockquote: true,
	atom.Hr: true, atom.Section: true, atom.Article: true,
}

// ToText converts an HTML fragment to NFKC-normalized plain text. Entities are
// decoded, scripts and styles dropped, block elements separated by newlines
// and runs of blank lines collapsed. Malformed markup is tolerated.
func ToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))

	var b strings.Builder
	depth := 0 // nesting inside skipped elements
	newline := func() {
		s := b.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			return finish(b.String())
		case html.TextToken:
			if depth > 0 {
				continue
			}
			b.Write(z.Text())
		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				depth++
			} else if breaking[a] {
				newline()
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if breaking[atom.Lookup(name)] {
				newline()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				if depth > 0 {
					depth--
				}
			} else if breaking[a] {
				newline()
			}
		}
	}
}

func finish(s string) string {
	s = norm.NFKC.String(s)
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
