// Package frontend embeds the built panel page served by the desktop app and
// the headless server.
package frontend

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var Assets embed.FS

// Dist returns the assets rooted at the dist directory.
func Dist() fs.FS {
	sub, err := fs.Sub(Assets, "dist")
	if err != nil {
		panic(err)
	}
	return sub
}
