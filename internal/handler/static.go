package handler

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-faster/errors"
)

// Storefront serves the static storefront from dir. Paths that do not name a
// file fall back to index.html so client-side routes resolve.
func Storefront(dir string) http.Handler {
	root := os.DirFS(dir)
	files := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "."
		}
		if _, err := fs.Stat(root, name); errors.Is(err, fs.ErrNotExist) {
			// ServeFileFS rejects raw paths containing "..".
			index := r.Clone(r.Context())
			index.URL.Path = "/"
			http.ServeFileFS(w, index, root, "index.html")
			return
		}
		files.ServeHTTP(w, r)
	})
}
