// internal/app/system/richtext/richtext.go

// Package richtext defines the structured document format blog posts
// are written in and renders it to HTML.
//
// A document is a tree of typed nodes. The vocabulary is closed: a
// document containing a node or mark type outside the sets below is
// rejected at save time, so stored documents always render.
package richtext

import (
	"errors"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/guildhall-club/guildhall/internal/app/system/htmlsanitize"
)

// ErrInvalid wraps every validation failure so callers can map the
// whole class to a 422 without inspecting the message.
var ErrInvalid = errors.New("invalid rich text document")

// MaxDepth bounds nesting so a crafted document cannot blow the stack.
const MaxDepth = 20

// Mark decorates a text node (bold, link, ...).
type Mark struct {
	Type  string            `bson:"type" json:"type"`
	Attrs map[string]string `bson:"attrs,omitempty" json:"attrs,omitempty"`
}

// Node is one element of the document tree. Text is set only on "text"
// nodes; Content only on container nodes.
type Node struct {
	Type    string                 `bson:"type" json:"type"`
	Attrs   map[string]interface{} `bson:"attrs,omitempty" json:"attrs,omitempty"`
	Text    string                 `bson:"text,omitempty" json:"text,omitempty"`
	Marks   []Mark                 `bson:"marks,omitempty" json:"marks,omitempty"`
	Content []Node                 `bson:"content,omitempty" json:"content,omitempty"`
}

// Doc is the document root.
type Doc struct {
	Type    string `bson:"type" json:"type"`
	Content []Node `bson:"content,omitempty" json:"content,omitempty"`
}

var blockTypes = map[string]bool{
	"paragraph":      true,
	"heading":        true,
	"bulletList":     true,
	"orderedList":    true,
	"listItem":       true,
	"blockquote":     true,
	"horizontalRule": true,
	"imageUrl":       true,
	"button":         true,
	"headingCard":    true,
}

var markTypes = map[string]bool{
	"bold":      true,
	"italic":    true,
	"underline": true,
	"strike":    true,
	"code":      true,
	"link":      true,
}

// Validate walks the tree and rejects anything outside the vocabulary.
func (d Doc) Validate() error {
	if d.Type != "doc" {
		return fmt.Errorf("%w: root type %q", ErrInvalid, d.Type)
	}
	for i := range d.Content {
		if err := validateNode(d.Content[i], 1); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(n Node, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: nesting exceeds %d levels", ErrInvalid, MaxDepth)
	}
	switch {
	case n.Type == "text":
		for _, m := range n.Marks {
			if !markTypes[m.Type] {
				return fmt.Errorf("%w: unknown mark %q", ErrInvalid, m.Type)
			}
		}
		if len(n.Content) > 0 {
			return fmt.Errorf("%w: text node with children", ErrInvalid)
		}
	case blockTypes[n.Type]:
		if n.Type == "heading" {
			if lvl := n.IntAttr("level"); lvl < 1 || lvl > 3 {
				return fmt.Errorf("%w: heading level %d", ErrInvalid, n.IntAttr("level"))
			}
		}
	default:
		return fmt.Errorf("%w: unknown node %q", ErrInvalid, n.Type)
	}
	for i := range n.Content {
		if err := validateNode(n.Content[i], depth+1); err != nil {
			return err
		}
	}
	return nil
}

// StrAttr returns the named attribute as a string, "" when absent.
func (n Node) StrAttr(key string) string {
	if v, ok := n.Attrs[key].(string); ok {
		return v
	}
	return ""
}

// IntAttr returns the named attribute as an int, 0 when absent. BSON
// round-trips numbers as int32/int64/float64 depending on path.
func (n Node) IntAttr(key string) int {
	switch v := n.Attrs[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// PlainText flattens the document to searchable text. Block boundaries
// become newlines.
func (d Doc) PlainText() string {
	var b strings.Builder
	for i := range d.Content {
		writePlain(&b, d.Content[i])
	}
	return strings.TrimSpace(b.String())
}

func writePlain(b *strings.Builder, n Node) {
	if n.Type == "text" {
		b.WriteString(n.Text)
		return
	}
	for i := range n.Content {
		writePlain(b, n.Content[i])
	}
	switch n.Type {
	case "headingCard":
		if t := n.StrAttr("title"); t != "" {
			b.WriteString(t)
		}
		b.WriteString("\n")
	case "text":
	default:
		b.WriteString("\n")
	}
}

// HTML renders the document. The output is produced from escaped text
// and a fixed tag set, then run through the sanitizer as a second
// fence before it is handed to templates.
func (d Doc) HTML() template.HTML {
	var b strings.Builder
	for i := range d.Content {
		writeHTML(&b, d.Content[i])
	}
	return htmlsanitize.SanitizeToHTML(b.String())
}

func writeHTML(b *strings.Builder, n Node) {
	switch n.Type {
	case "text":
		writeText(b, n)
	case "paragraph":
		wrap(b, "p", n)
	case "heading":
		tag := fmt.Sprintf("h%d", n.IntAttr("level"))
		wrap(b, tag, n)
	case "bulletList":
		wrap(b, "ul", n)
	case "orderedList":
		wrap(b, "ol", n)
	case "listItem":
		wrap(b, "li", n)
	case "blockquote":
		wrap(b, "blockquote", n)
	case "horizontalRule":
		b.WriteString("<hr>")
	case "imageUrl":
		src := n.StrAttr("src")
		if src == "" {
			return
		}
		fmt.Fprintf(b, `<img src=%q alt=%q>`, src, n.StrAttr("alt"))
	case "button":
		href := n.StrAttr("href")
		label := n.StrAttr("label")
		if href == "" || label == "" {
			return
		}
		fmt.Fprintf(b, `<p><a class="rt-button" href=%q>%s</a></p>`, href, html.EscapeString(label))
	case "headingCard":
		b.WriteString(`<div class="rt-heading-card">`)
		if t := n.StrAttr("title"); t != "" {
			fmt.Fprintf(b, "<h2>%s</h2>", html.EscapeString(t))
		}
		for i := range n.Content {
			writeHTML(b, n.Content[i])
		}
		b.WriteString("</div>")
	}
}

func wrap(b *strings.Builder, tag string, n Node) {
	b.WriteString("<" + tag + ">")
	for i := range n.Content {
		writeHTML(b, n.Content[i])
	}
	b.WriteString("</" + tag + ">")
}

func writeText(b *strings.Builder, n Node) {
	open, close := markTags(n.Marks)
	b.WriteString(open)
	b.WriteString(html.EscapeString(n.Text))
	b.WriteString(close)
}

func markTags(marks []Mark) (open, close string) {
	for _, m := range marks {
		switch m.Type {
		case "bold":
			open += "<strong>"
			close = "</strong>" + close
		case "italic":
			open += "<em>"
			close = "</em>" + close
		case "underline":
			open += "<u>"
			close = "</u>" + close
		case "strike":
			open += "<s>"
			close = "</s>" + close
		case "code":
			open += "<code>"
			close = "</code>" + close
		case "link":
			href := m.Attrs["href"]
			open += fmt.Sprintf(`<a href=%q rel="nofollow">`, href)
			close = "</a>" + close
		}
	}
	return open, close
}
