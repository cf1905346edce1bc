package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/obs"
	"github.com/jetgate/jetgate/pkg/fail"
)

type publishRequest struct {
	MessageID string          `json:"message_id"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

type publishResponse struct {
	Published bool   `json:"published"`
	Stream    string `json:"stream"`
	Sequence  uint64 `json:"sequence"`
	Subject   string `json:"subject"`
}

// handlePublish implements POST /api/messages/{subject}.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	if subject == "" {
		writeError(w, fail.BadRequest("subject must not be empty"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, fail.BadRequest("could not read request body"))
		return
	}

	var req publishRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, fail.BadRequest("malformed JSON body: %v", err))
			return
		}
	}

	payload := []byte(req.Data)
	if len(payload) == 0 {
		payload = body
	}

	streamName, err := s.resolver.ResolveForPublish(r.Context(), subject)
	if err != nil {
		obs.PublishTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}

	_, sequence, err := s.client.PublishRecord(r.Context(), subject, payload)
	if err != nil {
		obs.PublishTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}
	obs.PublishTotal.WithLabelValues("success").Inc()

	writeJSON(w, http.StatusOK, publishResponse{
		Published: true,
		Stream:    streamName,
		Sequence:  sequence,
		Subject:   subject,
	})
}

type messagesResponse struct {
	Count    int              `json:"count"`
	Stream   string           `json:"stream"`
	Subject  string           `json:"subject"`
	Messages []json.RawMessage `json:"messages"`
}

// handleFetchByFilter implements GET /api/messages/{filter}.
func (s *Server) handleFetchByFilter(w http.ResponseWriter, r *http.Request) {
	filter := r.PathValue("filter")
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

	result, err := s.fetchEngine.Fetch(r.Context(), filter, limit, timeout)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMessagesResponse(result.Stream, result.Subject, result.Messages))
}

// handleFetchFromConsumer implements GET /api/messages/{stream}/consumer/{name}.
func (s *Server) handleFetchFromConsumer(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	name := r.PathValue("name")
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

	result, err := s.fetchEngine.FetchFromConsumer(r.Context(), streamName, name, limit, timeout)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMessagesResponse(result.Stream, result.Subject, result.Messages))
}

func toMessagesResponse(stream, subject string, messages []broker.Message) messagesResponse {
	views := make([]json.RawMessage, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView(m))
	}
	return messagesResponse{Count: len(views), Stream: stream, Subject: subject, Messages: views}
}

// messageView renders one Message as subject/sequence/timestamp alongside a
// decoded "data" field when the payload is valid JSON. This typed view is
// produced at the surface layer only, never at the engine core.
func messageView(m broker.Message) json.RawMessage {
	type view struct {
		Subject   string          `json:"subject"`
		Sequence  uint64          `json:"sequence"`
		Timestamp time.Time       `json:"timestamp"`
		Data      json.RawMessage `json:"data,omitempty"`
		Raw       string          `json:"raw,omitempty"`
	}

	v := view{Subject: m.Subject, Sequence: m.Sequence, Timestamp: m.Timestamp}
	if json.Valid(m.Data) {
		v.Data = m.Data
	} else if utf8.Valid(m.Data) {
		v.Raw = string(m.Data)
	} else {
		v.Raw = "[binary]"
	}

	encoded, _ := json.Marshal(v)
	return encoded
}
