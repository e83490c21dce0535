package httpserver

import "net/http"

// Routes groups handlers of the local device API.
type Routes struct {
	Health            http.HandlerFunc
	Customers         http.HandlerFunc
	State             http.HandlerFunc
	SelectMap         http.HandlerFunc
	BeginEdit         http.HandlerFunc
	EndEdit           http.HandlerFunc
	AddStation        http.HandlerFunc
	RemoveStation     http.HandlerFunc
	RepositionStation http.HandlerFunc
	CommitStations    http.HandlerFunc
	StartSession      http.HandlerFunc
	LogStation        http.HandlerFunc
	FinishSession     http.HandlerFunc
	SubmitSession     http.HandlerFunc
	CancelSession     http.HandlerFunc
	Events            http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	register := func(pattern, verb string, h http.HandlerFunc) {
		if h != nil {
			mux.Handle(pattern, method(verb, h))
		}
	}

	register("/health", http.MethodGet, routes.Health)
	register("/customers", http.MethodGet, routes.Customers)
	register("/session", http.MethodGet, routes.State)
	register("/workspace/select", http.MethodPost, routes.SelectMap)
	register("/workspace/edit/begin", http.MethodPost, routes.BeginEdit)
	register("/workspace/edit/end", http.MethodPost, routes.EndEdit)
	register("/stations", http.MethodPost, routes.AddStation)
	register("/stations/commit", http.MethodPost, routes.CommitStations)
	register("/stations/{id}", http.MethodDelete, routes.RemoveStation)
	register("/stations/{id}/position", http.MethodPut, routes.RepositionStation)
	register("/session/start", http.MethodPost, routes.StartSession)
	register("/session/logs", http.MethodPost, routes.LogStation)
	register("/session/finish", http.MethodPost, routes.FinishSession)
	register("/session/submit", http.MethodPost, routes.SubmitSession)
	register("/session/cancel", http.MethodPost, routes.CancelSession)
	register("/events", http.MethodGet, routes.Events)
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
