// Package webui embeds the browser front end of the library workbench.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// Static returns the embedded files rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the embed pattern above guarantees the directory exists
		panic(err)
	}
	return sub
}

// Handler serves the workbench page and its assets.
func Handler() http.Handler {
	return http.FileServerFS(Static())
}
