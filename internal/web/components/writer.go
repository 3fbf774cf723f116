package components

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Writer writes HTML fragments and remembers the first write error.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Raw writes trusted markup.
func (w *Writer) Raw(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}

// Text writes s with HTML escaping.
func (w *Writer) Text(s string) {
	w.Raw(templ.EscapeString(s))
}

// URL writes a sanitized, escaped URL for use inside an attribute.
func (w *Writer) URL(s string) {
	w.Text(string(templ.URL(s)))
}

// Render writes a nested component.
func (w *Writer) Render(ctx context.Context, c templ.Component) {
	if w.err != nil || c == nil {
		return
	}
	w.err = c.Render(ctx, w.w)
}

// CSRFField writes the hidden form field checked on unsafe requests.
func (w *Writer) CSRFField(token string) {
	w.Raw(`<input type="hidden" name="csrf_token" value="`)
	w.Text(token)
	w.Raw(`">`)
}

func (w *Writer) Err() error {
	return w.err
}
