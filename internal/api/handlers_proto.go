package api

import (
	"io"
	"net/http"

	"github.com/jetgate/jetgate/internal/stream"
	"github.com/jetgate/jetgate/pkg/fail"
)

const protoContentType = "application/octet-stream"

// handlePublishProto implements POST /api/proto/protobufmessages/{subject}:
// the body is the raw payload bytes, published exactly like the JSON
// endpoint; the response is a single binary-encoded data frame describing
// the committed record.
func (s *Server) handlePublishProto(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	if subject == "" {
		writeError(w, fail.BadRequest("subject must not be empty"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, fail.BadRequest("could not read request body"))
		return
	}

	if _, err := s.resolver.ResolveForPublish(r.Context(), subject); err != nil {
		writeError(w, err)
		return
	}

	_, sequence, err := s.client.PublishRecord(r.Context(), subject, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	frame := stream.DataFrame{Subject: subject, StreamSequence: sequence, Timestamp: nowFunc(), Payload: payload}
	w.Header().Set("Content-Type", protoContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(stream.EncodeData(frame))
}

// handleFetchProto implements GET /api/proto/protobufmessages/{subject}: the
// same last-N-by-filter semantics as the JSON endpoint, with the response
// body a concatenation of binary data frames (stream.DecodeAll on the client side).
func (s *Server) handleFetchProto(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	timeout, err := parseTimeout(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.fetchEngine.Fetch(r.Context(), subject, limit, timeout)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", protoContentType)
	w.WriteHeader(http.StatusOK)
	for _, m := range result.Messages {
		_, _ = w.Write(stream.EncodeData(stream.FromMessage(m)))
	}
}
