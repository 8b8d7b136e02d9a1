// Package cache implements the durable, session-scoped chat message
// cache and the per-participant moderation-state records. It is a
// convenience layer over a key-value medium: every operation degrades
// to a safe default on failure and never propagates an error.
package cache

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/you/sanctum-chat/internal/core"
	"github.com/you/sanctum-chat/internal/kv"
)

const (
	messagePrefix     = "chat_messages_"
	participantPrefix = "participant_state_"
)

const (
	// DefaultMessageRetention is how long a session's cached messages
	// survive without an update before a read discards them.
	DefaultMessageRetention = 24 * time.Hour
	// DefaultParticipantRetention bounds the age of moderation flags.
	DefaultParticipantRetention = time.Hour
)

// sessionRecord is the persisted shape under chat_messages_<sessionID>.
type sessionRecord struct {
	SessionID     string         `json:"session_id"`
	Messages      []core.Message `json:"messages"`
	LastUpdatedAt time.Time      `json:"last_updated_at"`
}

// participantRecord is the persisted shape under
// participant_state_<sessionID>_<participantID>. LastUpdatedAt is epoch
// milliseconds.
type participantRecord struct {
	IsMuted       *bool `json:"is_muted,omitempty"`
	IsKicked      *bool `json:"is_kicked,omitempty"`
	LastUpdatedAt int64 `json:"last_updated_at"`
}

// Store owns the cache records. All methods are safe for concurrent use
// and synchronous: they return immediately with either the real value
// or the safe default.
type Store struct {
	medium kv.Store
	logger *slog.Logger
	now    func() time.Time

	// opMu serializes read-modify-write cycles so two Add calls for the
	// same session cannot lose an update within this process. Cross-process
	// writers remain unguarded.
	opMu sync.Mutex

	mu           sync.Mutex
	messageTTL   time.Duration
	participants time.Duration
}

// Options tune a Store. Zero values fall back to defaults.
type Options struct {
	Logger *slog.Logger
	// Now overrides the wall clock, used by expiry checks.
	Now                  func() time.Time
	MessageRetention     time.Duration
	ParticipantRetention time.Duration
}

func New(medium kv.Store, opts Options) *Store {
	s := &Store{
		medium:       medium,
		logger:       opts.Logger,
		now:          opts.Now,
		messageTTL:   opts.MessageRetention,
		participants: opts.ParticipantRetention,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.messageTTL <= 0 {
		s.messageTTL = DefaultMessageRetention
	}
	if s.participants <= 0 {
		s.participants = DefaultParticipantRetention
	}
	return s
}

// Retention returns the current message and participant windows.
func (s *Store) Retention() (messages, participants time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageTTL, s.participants
}

// SetRetention replaces the retention windows. Non-positive values keep
// the current window.
func (s *Store) SetRetention(messages, participants time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messages > 0 {
		s.messageTTL = messages
	}
	if participants > 0 {
		s.participants = participants
	}
	s.logger.Info("cache: retention updated",
		"messages", s.messageTTL, "participants", s.participants)
}

func messageKey(sessionID string) string {
	return messagePrefix + sessionID
}

func participantKey(sessionID, participantID string) string {
	return participantPrefix + sessionID + "_" + participantID
}

// Load returns the cached messages for a session, or nil when the
// record is absent, unreadable, or older than the message retention
// window. An expired record is deleted as a side effect.
func (s *Store) Load(sessionID string) []core.Message {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	msgs, out := s.load(sessionID)
	s.observe("load", sessionID, out)
	return msgs
}

func (s *Store) load(sessionID string) ([]core.Message, outcome) {
	key := messageKey(sessionID)
	raw, found, err := s.medium.Get(key)
	if err != nil {
		return nil, failed(causeStorageUnavailable, errors.Wrap(err, "read session record"))
	}
	if !found {
		return nil, ok()
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, failed(causeMalformedRecord, errors.Wrap(err, "decode session record"))
	}
	if rec.LastUpdatedAt.IsZero() {
		return nil, failed(causeMalformedRecord, errors.New("session record missing last_updated_at"))
	}

	ttl, _ := s.Retention()
	if s.now().Sub(rec.LastUpdatedAt) > ttl {
		if err := s.medium.Delete(key); err != nil {
			s.logger.Warn("cache: expired record delete failed", "key", key, "err", err)
		}
		storeMetrics.incExpired()
		return nil, failed(causeStaleRecord, errors.Errorf("session record stale since %s", rec.LastUpdatedAt.Format(time.RFC3339)))
	}
	return rec.Messages, ok()
}

// Save overwrites the session record with the given messages and a
// fresh timestamp. Persistence failures are logged, never returned.
func (s *Store) Save(sessionID string, msgs []core.Message) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.observe("save", sessionID, s.save(sessionID, msgs))
}

func (s *Store) save(sessionID string, msgs []core.Message) outcome {
	rec := sessionRecord{
		SessionID:     sessionID,
		Messages:      msgs,
		LastUpdatedAt: s.now().UTC(),
	}
	if rec.Messages == nil {
		rec.Messages = []core.Message{}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return failed(causeMalformedRecord, errors.Wrap(err, "encode session record"))
	}
	if err := s.medium.Set(messageKey(sessionID), raw); err != nil {
		return failed(causeStorageUnavailable, errors.Wrap(err, "write session record"))
	}
	return ok()
}

// Add appends a message to the session record unless a message with the
// same ID is already cached, making repeated delivery of one message
// idempotent.
func (s *Store) Add(sessionID string, msg core.Message) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	current, out := s.load(sessionID)
	s.observe("add", sessionID, out)

	for _, m := range current {
		if m.ID == msg.ID {
			return
		}
	}
	s.observe("add", sessionID, s.save(sessionID, append(current, msg.Normalize())))
}

// Clear deletes the session's message record unconditionally.
func (s *Store) Clear(sessionID string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.medium.Delete(messageKey(sessionID)); err != nil {
		s.observe("clear", sessionID, failed(causeStorageUnavailable, errors.Wrap(err, "delete session record")))
	}
}

// ClearAll deletes every record under the cache's key namespaces,
// leaving unrelated keys in the medium untouched.
func (s *Store) ClearAll() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	for _, prefix := range []string{messagePrefix, participantPrefix} {
		keys, err := s.medium.Keys(prefix)
		if err != nil {
			s.observe("clear_all", prefix, failed(causeStorageUnavailable, errors.Wrap(err, "list keys")))
			continue
		}
		for _, key := range keys {
			if err := s.medium.Delete(key); err != nil {
				s.observe("clear_all", key, failed(causeStorageUnavailable, errors.Wrap(err, "delete record")))
			}
		}
	}
}

// SetParticipantState merges the patch over the participant's current
// flags and persists with a fresh timestamp.
func (s *Store) SetParticipantState(sessionID, participantID string, patch core.ParticipantStatePatch) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	state, out := s.participantState(sessionID, participantID)
	s.observe("set_participant_state", sessionID, out)

	next := patch.Apply(state)
	rec := participantRecord{
		IsMuted:       &next.Muted,
		IsKicked:      &next.Kicked,
		LastUpdatedAt: s.now().UTC().UnixMilli(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		s.observe("set_participant_state", sessionID, failed(causeMalformedRecord, errors.Wrap(err, "encode participant record")))
		return
	}
	if err := s.medium.Set(participantKey(sessionID, participantID), raw); err != nil {
		s.observe("set_participant_state", sessionID, failed(causeStorageUnavailable, errors.Wrap(err, "write participant record")))
	}
}

// GetParticipantState returns the participant's moderation flags, or
// the zero state when the record is absent, unreadable, or older than
// the participant retention window (deleting it as a side effect).
func (s *Store) GetParticipantState(sessionID, participantID string) core.ParticipantState {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	state, out := s.participantState(sessionID, participantID)
	s.observe("get_participant_state", sessionID, out)
	return state
}

func (s *Store) participantState(sessionID, participantID string) (core.ParticipantState, outcome) {
	key := participantKey(sessionID, participantID)
	raw, found, err := s.medium.Get(key)
	if err != nil {
		return core.ParticipantState{}, failed(causeStorageUnavailable, errors.Wrap(err, "read participant record"))
	}
	if !found {
		return core.ParticipantState{}, ok()
	}

	var rec participantRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.ParticipantState{}, failed(causeMalformedRecord, errors.Wrap(err, "decode participant record"))
	}
	if rec.LastUpdatedAt <= 0 {
		return core.ParticipantState{}, failed(causeMalformedRecord, errors.New("participant record missing last_updated_at"))
	}

	_, ttl := s.Retention()
	updated := time.UnixMilli(rec.LastUpdatedAt)
	if s.now().Sub(updated) > ttl {
		if err := s.medium.Delete(key); err != nil {
			s.logger.Warn("cache: expired record delete failed", "key", key, "err", err)
		}
		storeMetrics.incExpired()
		return core.ParticipantState{}, failed(causeStaleRecord, errors.Errorf("participant record stale since %s", updated.UTC().Format(time.RFC3339)))
	}

	var state core.ParticipantState
	if rec.IsMuted != nil {
		state.Muted = *rec.IsMuted
	}
	if rec.IsKicked != nil {
		state.Kicked = *rec.IsKicked
	}
	return state, ok()
}

// observe logs and counts a degraded outcome. Successful outcomes are
// silent.
func (s *Store) observe(op, subject string, out outcome) {
	if !out.degraded {
		return
	}
	storeMetrics.incDegraded(out.cause)
	s.logger.Warn("cache: operation degraded",
		"op", op, "subject", subject, "cause", string(out.cause), "err", out.err)
}
