// Package enrich merges a live message feed with cached session history
// into a display-ready, chronologically ordered list.
package enrich

import (
	"sort"

	"github.com/you/sanctum-chat/internal/core"
)

// Enrich unions live and cached messages (live wins on duplicate IDs),
// resolves reply snapshots against the union, and returns the result
// sorted ascending by timestamp with a stable tie order.
//
// The function is pure and total: no I/O, no hidden state, never fails.
// Snapshots are recomputed from the authoritative reply_to field on
// every pass, so re-enriching already-enriched input yields the same
// result, and a snapshot persisted for a target that has since expired
// is dropped rather than trusted.
func Enrich(live, cached []core.Message) []core.Message {
	merged := make([]core.Message, 0, len(live)+len(cached))
	seen := make(map[string]struct{}, len(live))

	for _, m := range live {
		merged = append(merged, m)
		seen[m.ID] = struct{}{}
	}
	for _, m := range cached {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}

	// Index the pre-link union so snapshots are built from authoritative
	// fields, not from another message's derived snapshot.
	index := make(map[string]core.Message, len(merged))
	for _, m := range merged {
		index[m.ID] = m
	}

	for i := range merged {
		if merged[i].ReplyTo == "" {
			merged[i].ReplySnapshot = nil
			continue
		}
		target, ok := index[merged[i].ReplyTo]
		if !ok {
			// Unresolved reply: keep the reference, drop the snippet.
			merged[i].ReplySnapshot = nil
			continue
		}
		merged[i].ReplySnapshot = &core.ReplySnapshot{
			ID:          target.ID,
			SenderAlias: target.SenderAlias,
			Content:     target.Content,
			Ts:          target.Ts.UTC(),
		}
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Ts.Before(merged[b].Ts)
	})
	return merged
}
