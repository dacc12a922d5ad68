package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/insert", h.Insert).Methods(http.MethodPost)
	r.HandleFunc("/query", h.Query).Methods(http.MethodPost)

	return recoverer(logRequests(corsMiddleware(allowedOrigins)(r)))
}
