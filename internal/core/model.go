package core

import (
	"strings"
	"time"
)

// Kind classifies a chat message for rendering purposes.
type Kind string

const (
	KindText     Kind = "text"
	KindSystem   Kind = "system"
	KindReaction Kind = "reaction"
	KindMedia    Kind = "media"
)

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the known message kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindText, KindSystem, KindReaction, KindMedia:
		return true
	}
	return false
}

// NormalizeKind maps a raw kind string to its canonical Kind. Unknown or
// empty values fall back to text.
func NormalizeKind(raw string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if !k.IsValid() {
		return KindText
	}
	return k
}

// Attachment is an opaque media reference carried by media messages.
type Attachment struct {
	Name string `json:"name"`
	Ref  string `json:"ref,omitempty"`
}

// ReplySnapshot is a denormalized copy of the message a reply points at.
// It is derived data: the enrichment pass recomputes it from ReplyTo on
// every run, so it must never be treated as authoritative.
type ReplySnapshot struct {
	ID          string    `json:"id"`
	SenderAlias string    `json:"sender_alias"`
	Content     string    `json:"content"`
	Ts          time.Time `json:"ts"`
}

// Message is a single chat event within a session.
type Message struct {
	ID            string         `json:"id"`
	SenderAlias   string         `json:"sender_alias"`
	SenderAvatar  int            `json:"sender_avatar,omitempty"`
	Content       string         `json:"content"`
	Ts            time.Time      `json:"ts"`
	Kind          Kind           `json:"kind"`
	Attachment    *Attachment    `json:"attachment,omitempty"`
	ReplyTo       string         `json:"reply_to,omitempty"`
	ReplySnapshot *ReplySnapshot `json:"reply_snapshot,omitempty"`
}

// Normalize fills presentation defaults: avatar index 1 when unset and
// kind text when unknown.
func (m Message) Normalize() Message {
	if m.SenderAvatar <= 0 {
		m.SenderAvatar = 1
	}
	if !m.Kind.IsValid() {
		m.Kind = KindText
	}
	return m
}

// ParticipantState holds the client-side moderation flags for one
// participant in one session. Absent state reads as the zero value.
type ParticipantState struct {
	Muted  bool `json:"is_muted"`
	Kicked bool `json:"is_kicked"`
}

// ParticipantStatePatch is a partial update; nil fields leave the
// existing flag untouched.
type ParticipantStatePatch struct {
	Muted  *bool `json:"is_muted,omitempty"`
	Kicked *bool `json:"is_kicked,omitempty"`
}

// Apply overlays the patch on top of the given state.
func (p ParticipantStatePatch) Apply(s ParticipantState) ParticipantState {
	if p.Muted != nil {
		s.Muted = *p.Muted
	}
	if p.Kicked != nil {
		s.Kicked = *p.Kicked
	}
	return s
}
