package middleware

import (
	"net/http"

	"shop-admin/internal/broadcast"
)

const (
	// SocketIDHeader names the websocket connection a browser request came from
	SocketIDHeader = broadcast.SocketIDHeader
	// InertiaHeader marks page requests that want the page object as JSON
	InertiaHeader = "X-Inertia"
)

// SocketID copies the originating websocket id into the request context so
// events caused by this request skip that connection.
func SocketID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(SocketIDHeader); id != "" {
			r = r.WithContext(broadcast.ContextWithSocketID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
