package modules

import "net/http"

// Module is one mounted proxy endpoint.
type Module interface {
	Shutdown()
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}
