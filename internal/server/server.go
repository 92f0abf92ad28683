package server

import (
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

func Handler(staticFS fs.FS, hub *Hub, store SessionStore, coach Coach, opts Options) (http.Handler, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	mux := http.NewServeMux()

	registerWSRoute(mux, hub, coach, opts.Logger)
	registerAPIRoutes(mux, store, coach, opts)

	fileServer := http.FileServer(http.FS(staticFS))
	mux.HandleFunc("/", serveSPA(fileServer))

	return mux, nil
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
			http.NotFound(w, r)
			return
		}

		// Client-side routes serve the index. FileServer redirects explicit
		// /index.html requests, so they are rewritten to the root.
		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" || !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
