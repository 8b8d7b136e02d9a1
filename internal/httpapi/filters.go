package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/you/sanctum-chat/internal/core"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Order represents the chronological order to use when listing messages.
type Order string

const (
	// OrderAsc returns messages oldest first, the display order.
	OrderAsc Order = "asc"
	// OrderDesc returns messages newest first.
	OrderDesc Order = "desc"
)

// Filters captures the parsed query parameters for message lookups.
type Filters struct {
	Senders []string
	Kinds   []core.Kind
	Since   *time.Time
	Limit   int
	Order   Order
}

// ParseFilters parses query parameters into a Filters struct.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{
		Limit: defaultLimit,
		Order: OrderAsc,
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filters{}, errors.New("limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}

	if raw := values.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "desc":
			f.Order = OrderDesc
		case "asc":
			f.Order = OrderAsc
		default:
			return Filters{}, errors.New("order must be asc or desc")
		}
	}

	if rawSince := values.Get("since"); rawSince != "" {
		parsed, err := parseSince(rawSince)
		if err != nil {
			return Filters{}, err
		}
		f.Since = &parsed
	}

	if kinds := collect(values, "kind"); len(kinds) > 0 {
		seen := make(map[core.Kind]struct{})
		for _, raw := range kinds {
			for _, part := range strings.Split(raw, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				k := core.Kind(strings.ToLower(part))
				if !k.IsValid() {
					return Filters{}, errors.New("invalid kind filter")
				}
				if _, exists := seen[k]; !exists {
					f.Kinds = append(f.Kinds, k)
					seen[k] = struct{}{}
				}
			}
		}
	}

	if senders := collect(values, "sender"); len(senders) > 0 {
		seen := make(map[string]struct{})
		for _, raw := range senders {
			for _, part := range strings.Split(raw, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				lowered := strings.ToLower(part)
				if _, exists := seen[lowered]; !exists {
					f.Senders = append(f.Senders, lowered)
					seen[lowered] = struct{}{}
				}
			}
		}
	}

	return f, nil
}

// FiltersFromRequest parses filters from an HTTP request.
func FiltersFromRequest(r *http.Request) (Filters, error) {
	return ParseFilters(r.URL.Query())
}

func collect(values url.Values, key string) []string {
	out := values[key]
	if out == nil {
		return nil
	}
	return out
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d).UTC(), nil
	}
	return time.Time{}, errors.New("invalid since parameter")
}

// Matches reports whether the provided message satisfies the filters.
func (f Filters) Matches(msg core.Message) bool {
	if len(f.Kinds) > 0 {
		match := false
		for _, k := range f.Kinds {
			if msg.Kind == k {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if len(f.Senders) > 0 {
		sender := strings.ToLower(msg.SenderAlias)
		match := false
		for _, s := range f.Senders {
			if strings.Contains(sender, s) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if f.Since != nil {
		since := f.Since.UTC()
		if msg.Ts.Before(since) {
			return false
		}
	}

	return true
}

// Apply filters, orders, and truncates an enriched message list.
func (f Filters) Apply(msgs []core.Message) []core.Message {
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if f.Matches(m) {
			out = append(out, m)
		}
	}

	if f.Order == OrderDesc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// CloneForStream returns a copy of the filters adjusted for streaming
// transports.
func (f Filters) CloneForStream() Filters {
	f.Limit = 0
	return f
}
