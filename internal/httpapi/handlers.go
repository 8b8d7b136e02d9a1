package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/you/sanctum-chat/internal/cachetrace"
	"github.com/you/sanctum-chat/internal/core"
	"github.com/you/sanctum-chat/internal/enrich"
)

type addMessageRequest struct {
	ID           string           `json:"id,omitempty"`
	SenderAlias  string           `json:"sender_alias"`
	SenderAvatar int              `json:"sender_avatar,omitempty"`
	Content      string           `json:"content"`
	Ts           time.Time        `json:"ts,omitempty"`
	Kind         string           `json:"kind,omitempty"`
	Attachment   *core.Attachment `json:"attachment,omitempty"`
	ReplyTo      string           `json:"reply_to,omitempty"`
}

type enrichRequest struct {
	Live []core.Message `json:"live"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Run the cached history through enrichment so stale snapshots are
	// recomputed even when no live feed is attached.
	msgs := enrich.Enrich(nil, s.cache.Load(session))
	writeJSON(w, filters.Apply(msgs))
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	defer r.Body.Close()

	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Content == "" && req.Attachment != nil {
		// Attachment messages display the attachment name as their body.
		req.Content = req.Attachment.Name
	}
	if req.SenderAlias == "" || req.Content == "" {
		http.Error(w, "sender_alias and content required", http.StatusBadRequest)
		return
	}
	if req.Ts.IsZero() {
		req.Ts = time.Now().UTC()
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	msg := core.Message{
		ID:           req.ID,
		SenderAlias:  req.SenderAlias,
		SenderAvatar: req.SenderAvatar,
		Content:      req.Content,
		Ts:           req.Ts,
		Kind:         core.NormalizeKind(req.Kind),
		Attachment:   req.Attachment,
		ReplyTo:      req.ReplyTo,
	}.Normalize()

	trace := cachetrace.New(session, msg.SenderAlias, snippet(msg.Content))
	cached := s.cache.Load(session)
	trace.IncCounter(cachetrace.StageLoadedCache)

	s.cache.Add(session, msg)
	trace.IncCounter(cachetrace.StagePersisted)
	s.metrics.IncMessagesAdded(msg.Kind.String())

	// Resolve the reply snapshot against the union so stream clients and
	// the response carry the quoted snippet immediately.
	out := msg
	for _, m := range enrich.Enrich([]core.Message{msg}, cached) {
		if m.ID == msg.ID {
			out = m
			break
		}
	}
	trace.IncCounter(cachetrace.StageMerged)
	if out.ReplySnapshot != nil {
		trace.IncCounter(cachetrace.StageReplyResolved)
	}
	trace.LogTrace(s.logger, "message cached")

	s.Broadcast(session, out)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear(r.PathValue("session"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	defer r.Body.Close()

	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	enriched := enrich.Enrich(req.Live, s.cache.Load(session))
	s.cache.Save(session, enriched)
	writeJSON(w, enriched)
}

func (s *Server) handleGetParticipantState(w http.ResponseWriter, r *http.Request) {
	state := s.cache.GetParticipantState(r.PathValue("session"), r.PathValue("participant"))
	writeJSON(w, state)
}

func (s *Server) handleSetParticipantState(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var patch core.ParticipantStatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if patch.Muted == nil && patch.Kicked == nil {
		http.Error(w, "is_muted or is_kicked required", http.StatusBadRequest)
		return
	}

	session := r.PathValue("session")
	participant := r.PathValue("participant")
	s.cache.SetParticipantState(session, participant, patch)
	writeJSON(w, s.cache.GetParticipantState(session, participant))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func snippet(content string) string {
	const max = 48
	if len(content) <= max {
		return content
	}
	// Cut on a rune boundary so the trace log never carries a torn rune.
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
