package server

import (
	"net/http"
	"strings"
)

// methodRouter maps HTTP methods to handlers for one route pattern.
type methodRouter map[string]http.HandlerFunc

// routeByMethod dispatches on the request method with a standard 405
// for methods the route does not support.
func routeByMethod(w http.ResponseWriter, r *http.Request, routes methodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// suffixRoute pairs a path suffix with its handler.
type suffixRoute struct {
	suffix  string
	handler http.HandlerFunc
}

// routeBySuffix dispatches when the path under prefix ends with a known
// suffix, e.g. /api/threads/{id}/context. Returns false when nothing
// matched so the caller can fall back to method routing.
func routeBySuffix(w http.ResponseWriter, r *http.Request, prefix string, routes []suffixRoute) bool {
	path := r.URL.Path
	if len(path) <= len(prefix) {
		return false
	}

	rest := path[len(prefix):]
	for _, route := range routes {
		if strings.HasSuffix(rest, route.suffix) {
			route.handler(w, r)
			return true
		}
	}
	return false
}

// routeResourceCollection handles the standard list + create pattern.
// GET -> list, POST -> create
func routeResourceCollection(w http.ResponseWriter, r *http.Request, list, create http.HandlerFunc) {
	routeByMethod(w, r, methodRouter{
		"GET":  list,
		"POST": create,
	})
}

// routeResourceItem handles the standard get + update + delete pattern.
// GET -> get, PUT -> update, DELETE -> delete
func routeResourceItem(w http.ResponseWriter, r *http.Request, get, update, delete http.HandlerFunc) {
	routeByMethod(w, r, methodRouter{
		"GET":    get,
		"PUT":    update,
		"DELETE": delete,
	})
}
