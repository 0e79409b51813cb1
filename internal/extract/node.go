package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Role names a structural element of a strip page.
type Role int

// Page roles.
const (
	RoleMetadata Role = iota
	RoleTagLinks
	RoleTranscript
	RoleImage
)

// Layout maps each role to a CSS selector.
type Layout map[Role]string

// DefaultLayout matches the archived strip pages.
var DefaultLayout = Layout{
	RoleMetadata:   "div.meta-info-container",
	RoleTagLinks:   "p.small.comic-tags a",
	RoleTranscript: "div.comic-transcript p",
	RoleImage:      "img.img-comic",
}

// Node is the narrow document capability the extractor relies on.
type Node interface {
	// Find returns the first descendant playing role.
	Find(role Role) (Node, bool)
	// FindAll returns every descendant playing role, in document order.
	FindAll(role Role) []Node
	Text() string
	Attr(name string) (string, bool)
}

// Parser turns raw page bytes into a queryable root Node.
type Parser func(page []byte) (Node, error)

// GoqueryParser parses HTML with goquery and resolves roles through layout.
func GoqueryParser(layout Layout) Parser {
	return func(page []byte) (Node, error) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		return selectionNode{sel: doc.Selection, layout: layout}, nil
	}
}

type selectionNode struct {
	sel    *goquery.Selection
	layout Layout
}

func (n selectionNode) Find(role Role) (Node, bool) {
	selector, ok := n.layout[role]
	if !ok {
		return nil, false
	}
	match := n.sel.Find(selector).First()
	if match.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: match, layout: n.layout}, true
}

func (n selectionNode) FindAll(role Role) []Node {
	selector, ok := n.layout[role]
	if !ok {
		return nil
	}
	var out []Node
	n.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, selectionNode{sel: s, layout: n.layout})
	})
	return out
}

func (n selectionNode) Text() string {
	return n.sel.Text()
}

func (n selectionNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}
