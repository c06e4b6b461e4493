// Package server is the HTTP and WebSocket surface consumed by the
// recording extension: session lifecycle routes, chunk uploads, media
// retrieval, and live progress events.
package server

import (
	"log"
	"net/http"
)

// Deps are the collaborators the routes dispatch into.
type Deps struct {
	Store        SessionStore
	Media        MediaStore
	Pipeline     Pipeline
	Hub          *Hub
	Enrichment   EnrichmentService
	Status       GatewayStatus
	GeneratedDir string
}

func Handler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	registerWSRoute(mux, deps.Hub)
	registerAPIRoutes(mux, deps.Store, deps.Media, deps.Pipeline, deps.Hub, deps.Enrichment, deps.Status, deps.GeneratedDir)
	return mux
}

func Serve(addr string, deps Deps) error {
	log.Printf("session API at http://%s", addr)
	return http.ListenAndServe(addr, Handler(deps))
}
