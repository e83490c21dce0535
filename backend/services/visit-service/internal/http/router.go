package httpserver

import (
	"net/http"

	"fieldservice/backend/services/visit-service/internal/http/handlers"
	"fieldservice/backend/services/visit-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	VisitHandlers *handlers.VisitHandlers
	HealthHandler http.HandlerFunc
}

// NewRouter wires HTTP routes. authMiddleware guards write endpoints; nil
// leaves them open.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	v := deps.VisitHandlers
	mux.Handle("/customers", method(http.MethodGet, http.HandlerFunc(v.Customers)))
	mux.Handle("/customers/{id}", method(http.MethodPut, authenticated(v.UpdateCustomer)))
	mux.Handle("/stations/logs", method(http.MethodPost, authenticated(v.LogStation)))
	mux.Handle("/visits", method(http.MethodPost, authenticated(v.CompleteVisit)))
	mux.Handle("/visits/{id}", method(http.MethodGet, authenticated(v.GetVisit)))

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
