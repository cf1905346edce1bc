package api

import (
	"net/http"

	"github.com/jetgate/jetgate/internal/broker"
)

type streamView struct {
	Name          string `json:"name"`
	Subjects      []string `json:"subjects"`
	Messages      uint64 `json:"messages"`
	Bytes         uint64 `json:"bytes"`
	FirstSeq      uint64 `json:"first_sequence"`
	LastSeq       uint64 `json:"last_sequence"`
	ConsumerCount int    `json:"consumer_count"`
}

// handleListStreams implements GET /api/streams.
func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.resolver.ListStreams(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]streamView, 0, len(streams))
	for _, info := range streams {
		views = append(views, toStreamView(info))
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": views, "count": len(views)})
}

// handleStreamInfo implements GET /api/streams/{name}.
func (s *Server) handleStreamInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, err := s.resolver.GetStreamInfo(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreamView(info))
}

// handleStreamSubjects implements GET /api/streams/{name}/subjects: the
// per-subject message counts currently held by the stream.
func (s *Server) handleStreamSubjects(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	distribution, err := s.client.GetSubjectDistribution(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream": name, "subjects": distribution})
}

func toStreamView(info broker.StreamInfo) streamView {
	return streamView{
		Name:          info.Name,
		Subjects:      info.Subjects,
		Messages:      info.Messages,
		Bytes:         info.Bytes,
		FirstSeq:      info.FirstSeq,
		LastSeq:       info.LastSeq,
		ConsumerCount: info.ConsumerCount,
	}
}
