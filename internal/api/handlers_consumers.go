package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/consumer"
	"github.com/jetgate/jetgate/pkg/fail"
)

type createConsumerRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	FilterSubject     string `json:"filter_subject"`
	DeliverPolicy     string `json:"deliver_policy"`
	OptStartSeq       uint64 `json:"opt_start_seq"`
	OptStartTime      string `json:"opt_start_time"`
	AckPolicy         string `json:"ack_policy"`
	AckWait           string `json:"ack_wait"`
	MaxDeliver        int    `json:"max_deliver"`
	InactiveThreshold string `json:"inactive_threshold"`
	MaxAckPending     int    `json:"max_ack_pending"`
	FlowControl       bool   `json:"flow_control"`
	Heartbeat         string `json:"heartbeat"`
}

func (req createConsumerRequest) toCreateRequest() (consumer.CreateRequest, error) {
	ackWait, err := parseOptionalDuration(req.AckWait)
	if err != nil {
		return consumer.CreateRequest{}, fail.BadRequest("invalid ack_wait: %v", err)
	}
	inactive, err := parseOptionalDuration(req.InactiveThreshold)
	if err != nil {
		return consumer.CreateRequest{}, fail.BadRequest("invalid inactive_threshold: %v", err)
	}
	heartbeat, err := parseOptionalDuration(req.Heartbeat)
	if err != nil {
		return consumer.CreateRequest{}, fail.BadRequest("invalid heartbeat: %v", err)
	}

	var optStartTime *time.Time
	if req.OptStartTime != "" {
		t, err := time.Parse(time.RFC3339, req.OptStartTime)
		if err != nil {
			return consumer.CreateRequest{}, fail.BadRequest("invalid opt_start_time: %v", err)
		}
		optStartTime = &t
	}

	return consumer.CreateRequest{
		Name:              req.Name,
		Description:       req.Description,
		FilterSubject:     req.FilterSubject,
		DeliverPolicy:     broker.DeliverPolicy(req.DeliverPolicy),
		OptStartSeq:       req.OptStartSeq,
		OptStartTime:      optStartTime,
		AckPolicy:         broker.AckPolicy(req.AckPolicy),
		AckWait:           ackWait,
		MaxDeliver:        req.MaxDeliver,
		InactiveThreshold: inactive,
		MaxAckPending:     req.MaxAckPending,
		FlowControl:       req.FlowControl,
		Heartbeat:         heartbeat,
	}, nil
}

func parseOptionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// handleConsumerTemplates implements GET /api/consumers/templates.
func (s *Server) handleConsumerTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": s.orchestrator.GetTemplates()})
}

// handleCreateConsumer implements POST /api/consumers/{stream}.
func (s *Server) handleCreateConsumer(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")

	var body createConsumerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, fail.BadRequest("malformed JSON body: %v", err))
		return
	}

	createReq, err := body.toCreateRequest()
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := s.orchestrator.CreateConsumer(r.Context(), streamName, createReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumerView(info))
}

// handleListConsumers implements GET /api/consumers/{stream}.
func (s *Server) handleListConsumers(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	infos, err := s.orchestrator.ListConsumers(r.Context(), streamName)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]consumerView, 0, len(infos))
	for _, info := range infos {
		views = append(views, toConsumerView(info))
	}
	writeJSON(w, http.StatusOK, map[string]any{"consumers": views, "count": len(views)})
}

// handleConsumerDetail implements GET /api/consumers/{stream}/{name}.
func (s *Server) handleConsumerDetail(w http.ResponseWriter, r *http.Request) {
	streamName, name := r.PathValue("stream"), r.PathValue("name")
	info, err := s.orchestrator.GetConsumerInfo(r.Context(), streamName, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumerView(info))
}

// handleDeleteConsumer implements DELETE /api/consumers/{stream}/{name}.
func (s *Server) handleDeleteConsumer(w http.ResponseWriter, r *http.Request) {
	streamName, name := r.PathValue("stream"), r.PathValue("name")
	if err := s.orchestrator.DeleteConsumer(r.Context(), streamName, name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "stream": streamName, "name": name})
}

// handleConsumerHealth implements GET /api/consumers/{stream}/{name}/health.
func (s *Server) handleConsumerHealth(w http.ResponseWriter, r *http.Request) {
	streamName, name := r.PathValue("stream"), r.PathValue("name")
	health, err := s.orchestrator.GetConsumerHealth(r.Context(), streamName, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// handlePeekMessages implements GET /api/consumers/{stream}/{name}/messages.
func (s *Server) handlePeekMessages(w http.ResponseWriter, r *http.Request) {
	streamName, name := r.PathValue("stream"), r.PathValue("name")
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}

	previews, err := s.orchestrator.PeekMessages(r.Context(), streamName, name, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": previews, "count": len(previews)})
}

type resetConsumerRequest struct {
	Mode     string `json:"mode"`
	Sequence uint64 `json:"sequence"`
	Time     string `json:"time"`
}

// handleResetConsumer implements POST /api/consumers/{stream}/{name}/reset.
func (s *Server) handleResetConsumer(w http.ResponseWriter, r *http.Request) {
	streamName, name := r.PathValue("stream"), r.PathValue("name")

	var body resetConsumerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, fail.BadRequest("malformed JSON body: %v", err))
		return
	}

	var at *time.Time
	if body.Time != "" {
		t, err := time.Parse(time.RFC3339, body.Time)
		if err != nil {
			writeError(w, fail.BadRequest("invalid time: %v", err))
			return
		}
		at = &t
	}

	info, err := s.orchestrator.ResetConsumer(r.Context(), streamName, name, consumer.ResetMode(body.Mode), body.Sequence, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumerView(info))
}

// handleMetricsHistory implements GET /api/consumers/{stream}/{name}/metrics/history.
func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	streamName, name := r.PathValue("stream"), r.PathValue("name")
	history, err := s.orchestrator.GetMetricsHistory(r.Context(), streamName, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

type consumerView struct {
	Stream          string `json:"stream"`
	Name            string `json:"name"`
	FilterSubject   string `json:"filter_subject"`
	DeliverPolicy   string `json:"deliver_policy"`
	AckPolicy       string `json:"ack_policy"`
	DeliveredStream uint64 `json:"delivered_stream_sequence"`
	AckFloorStream  uint64 `json:"ack_floor_stream_sequence"`
	NumAckPending   int    `json:"num_ack_pending"`
	NumRedelivered  int    `json:"num_redelivered"`
	NumPending      uint64 `json:"num_pending"`
}

func toConsumerView(info broker.ConsumerInfo) consumerView {
	return consumerView{
		Stream:          info.Stream,
		Name:            info.Name,
		FilterSubject:   info.Config.FilterSubject,
		DeliverPolicy:   string(info.Config.DeliverPolicy),
		AckPolicy:       string(info.Config.AckPolicy),
		DeliveredStream: info.Delivered.Stream,
		AckFloorStream:  info.AckFloor.Stream,
		NumAckPending:   info.NumAckPending,
		NumRedelivered:  info.NumRedelivered,
		NumPending:      info.NumPending,
	}
}
