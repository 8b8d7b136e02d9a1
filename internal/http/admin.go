package httpadmin

import (
	"encoding/json"
	"net/http"
)

// CacheAdmin is the maintenance surface exposed under /admin.
type CacheAdmin interface {
	ClearAll()
}

type Server struct {
	cache  CacheAdmin
	reload func() error
}

// New builds the admin server. reload may be nil when no retention
// overrides file is configured.
func New(cache CacheAdmin, reload func() error) *Server {
	return &Server{cache: cache, reload: reload}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.cache.ClearAll()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	})
	mux.HandleFunc("/admin/retention/reload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.reload == nil {
			http.Error(w, "no overrides file configured", http.StatusConflict)
			return
		}
		if err := s.reload(); err != nil {
			http.Error(w, "reload failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	})
}
