package api

import "net/http"

// handleWebsocketEphemeral implements GET (upgrade) /ws/websocketmessages/{filter}.
func (s *Server) handleWebsocketEphemeral(w http.ResponseWriter, r *http.Request) {
	filter := r.PathValue("filter")
	if err := s.streamEngine.ServeEphemeral(r.Context(), w, r, filter); err != nil {
		writeError(w, err)
	}
}

// handleWebsocketDurable implements GET (upgrade) /ws/websocketmessages/{stream}/consumer/{name}.
// The durable consumer must already exist; ServeDurable surfaces NotFound
// before ever upgrading the connection.
func (s *Server) handleWebsocketDurable(w http.ResponseWriter, r *http.Request) {
	streamName, name := r.PathValue("stream"), r.PathValue("name")
	if err := s.streamEngine.ServeDurable(r.Context(), w, r, streamName, name); err != nil {
		writeError(w, err)
	}
}
