package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const version = "v1.0.0"

// NewRouter wires the API routes with request-ID, access-log and CORS
// middleware. The destructive truncation route additionally requires the
// configured bearer token.
func NewRouter(api *APIHandler, stream *StreamHub, authToken string, allowedOrigins []string, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/readings", api.HandleIngest).Methods(http.MethodPost)
	r.HandleFunc("/api/readings", api.HandleQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/readings/latest", api.HandleLatest).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", api.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/storage", api.HandleStorageStats).Methods(http.MethodGet)
	r.Handle("/api/readings",
		requireBearerToken(authToken, logger, http.HandlerFunc(api.HandleTruncate)),
	).Methods(http.MethodDelete)

	if stream != nil {
		r.HandleFunc("/api/stream", stream.ServeHTTP).Methods(http.MethodGet)
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	return requestID(accessLog(logger, cors(r)))
}

// handleHealth reports liveness only; it never touches the store.
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","version":%q}`, version)
}
