// Package static embeds the stylesheet served under /static/.
package static

import (
	"embed"
	"net/http"
)

//go:embed *.css
var files embed.FS

func FileSystem() http.FileSystem {
	return http.FS(files)
}
