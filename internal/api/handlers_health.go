package api

import (
	"net/http"
)

type healthResponse struct {
	Status            string `json:"status"`
	BrokerConnected   bool   `json:"broker_connected"`
	JetstreamAvailable bool  `json:"jetstream_available"`
	ConfiguredURL     string `json:"configured_url"`
}

// handleHealth implements GET /health: liveness plus broker connectivity,
// always anonymous and always 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := s.resolver.ListStreams(r.Context())
	connected := err == nil

	writeJSON(w, http.StatusOK, healthResponse{
		Status:             "ok",
		BrokerConnected:    connected,
		JetstreamAvailable: connected,
		ConfiguredURL:      s.cfg.NATSURL,
	})
}
