package components

import "strings"

// PageMeta describes the document head of one page. Private pages (account
// settings, reset links) set NoIndex.
type PageMeta struct {
	Title       string
	Description string
	Path        string
	NoIndex     bool
}

func (m PageMeta) canonicalURL(appURL string) string {
	base := strings.TrimRight(strings.TrimSpace(appURL), "/")
	return base + normalizePath(m.Path)
}

func (m PageMeta) robots() string {
	if m.NoIndex {
		return "noindex, nofollow"
	}
	return "index, follow"
}

// fullTitle is "Title | App", or just one of them when the other is empty or
// they match.
func (m PageMeta) fullTitle(appName string) string {
	title := strings.TrimSpace(m.Title)
	name := strings.TrimSpace(appName)
	switch {
	case title == "":
		return name
	case name == "", strings.EqualFold(title, name):
		return title
	}
	return title + " | " + name
}

func normalizePath(path string) string {
	p := strings.TrimSpace(path)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
