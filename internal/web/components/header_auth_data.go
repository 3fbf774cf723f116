package components

import "strings"

type HeaderAuthData struct {
	IsAuthenticated bool
	DisplayName     string
	AvatarURL       string
}

// Flash is a one-shot message carried through a redirect's query string.
type Flash struct {
	Error  string
	Notice string
}

func (f Flash) Empty() bool {
	return strings.TrimSpace(f.Error) == "" && strings.TrimSpace(f.Notice) == ""
}
