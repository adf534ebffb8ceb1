// Package web embeds the built widget bundle (dist/) and serves it next to
// the API. The checked-in dist/index.html is a host page placeholder; a
// widget build replaces it.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

// SPAHandler returns an http.Handler that serves the embedded bundle.
// Asset requests (paths with an extension) that match no file get 404; any
// other path falls back to the host page.
func SPAHandler() http.Handler {
	bundle, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: embedded bundle missing: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(bundle))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = indexFile
		}

		if exists(bundle, name) && name != indexFile {
			fileServer.ServeHTTP(w, r)
			return
		}
		if path.Ext(name) != "" && name != indexFile {
			http.NotFound(w, r)
			return
		}

		// The host page must not be cached across bundle deployments.
		w.Header().Set("Cache-Control", "no-cache")
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

func exists(bundle fs.FS, name string) bool {
	f, err := bundle.Open(name)
	if err != nil {
		return false
	}
	if closeErr := f.Close(); closeErr != nil {
		slog.Debug("web: failed to close embedded file", "path", name, "error", closeErr)
	}
	return true
}
