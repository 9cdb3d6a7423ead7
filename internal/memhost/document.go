package memhost

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/vimsync/internal/host"
)

// Document is an in-memory text document.
type Document struct {
	uri      string
	scheme   string
	fileName string
	lines    []string
	closed   bool
}

func newDocument(uri, text string) *Document {
	scheme := "file"
	if i := strings.Index(uri, ":"); i > 0 {
		scheme = uri[:i]
	}
	name := uri
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		name = uri[i+1:]
	}
	return &Document{
		uri:      uri,
		scheme:   scheme,
		fileName: name,
		lines:    strings.Split(text, "\n"),
	}
}

func (d *Document) URI() string      { return d.uri }
func (d *Document) Scheme() string   { return d.scheme }
func (d *Document) FileName() string { return d.fileName }
func (d *Document) IsClosed() bool   { return d.closed }
func (d *Document) LineCount() int   { return len(d.lines) }

// LineText returns line i, or "" when i is out of range.
func (d *Document) LineText(i int) string {
	if i < 0 || i >= len(d.lines) {
		return ""
	}
	return d.lines[i]
}

// Text returns the whole document.
func (d *Document) Text() string {
	return strings.Join(d.lines, "\n")
}

// clamp keeps p inside the document.
func (d *Document) clamp(p host.Position) host.Position {
	return host.Clamp(d, p)
}

// offset converts a position to a byte offset into Text.
func (d *Document) offset(p host.Position) int {
	p = d.clamp(p)
	off := 0
	for i := 0; i < p.Line; i++ {
		off += len(d.lines[i]) + 1
	}
	return off + byteIndex(d.lines[p.Line], p.Character)
}

// position converts a byte offset into Text to a position.
func (d *Document) position(off int) host.Position {
	for i, l := range d.lines {
		if off <= len(l) {
			return host.Position{Line: i, Character: utf8.RuneCountInString(l[:off])}
		}
		off -= len(l) + 1
	}
	return d.clamp(host.Position{Line: len(d.lines)})
}

// replace swaps r for text and returns the change and the end of the
// inserted text.
func (d *Document) replace(r host.Range, text string) (host.ContentChange, host.Position) {
	if r.End.Before(r.Start) {
		r.Start, r.End = r.End, r.Start
	}
	r.Start, r.End = d.clamp(r.Start), d.clamp(r.End)

	full := d.Text()
	start, end := d.offset(r.Start), d.offset(r.End)
	removed := full[start:end]
	d.lines = strings.Split(full[:start]+text+full[end:], "\n")

	change := host.ContentChange{Range: r, RangeLength: utf8.RuneCountInString(removed), Text: text}
	return change, d.position(start + len(text))
}

func byteIndex(s string, runes int) int {
	i := 0
	for n := 0; n < runes && i < len(s); n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

var _ host.Document = (*Document)(nil)
