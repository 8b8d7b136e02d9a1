package cache

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// retentionOverrides is the shape of the optional overrides file.
// Durations use Go syntax ("24h", "90m").
type retentionOverrides struct {
	MessageRetention     string `json:"message_retention"`
	ParticipantRetention string `json:"participant_retention"`
}

// ReloadOverrides re-reads the overrides file and applies any retention
// windows it carries.
func (s *Store) ReloadOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read overrides")
	}
	var ov retentionOverrides
	if err := json.Unmarshal(raw, &ov); err != nil {
		return errors.Wrap(err, "decode overrides")
	}

	var messages, participants time.Duration
	if ov.MessageRetention != "" {
		d, err := time.ParseDuration(ov.MessageRetention)
		if err != nil {
			return errors.Wrap(err, "parse message_retention")
		}
		messages = d
	}
	if ov.ParticipantRetention != "" {
		d, err := time.ParseDuration(ov.ParticipantRetention)
		if err != nil {
			return errors.Wrap(err, "parse participant_retention")
		}
		participants = d
	}
	s.SetRetention(messages, participants)
	return nil
}

// WatchOverrides watches the overrides file and re-applies it on
// change. Events are debounced so editors that write-then-rename only
// trigger one reload.
func (s *Store) WatchOverrides(path string) error {
	if path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("overrides watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				if err := s.ReloadOverrides(path); err != nil {
					slog.Error("overrides reload failed", "err", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("overrides watch error", "err", err)
			}
		}
	}()
	return nil
}
