package kv

import (
	"path/filepath"
	"sort"
	"testing"
)

// openBackends returns every Store implementation against a fresh
// throwaway location.
func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := OpenSQLite(filepath.Join(dir, "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	pebble, err := OpenPebble(filepath.Join(dir, "kv.pebble"))
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}

	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
		"pebble": pebble,
	}
	t.Cleanup(func() {
		for name, s := range stores {
			if err := s.Close(); err != nil {
				t.Errorf("close %s: %v", name, err)
			}
		}
	})
	return stores
}

func TestStoreSetGet(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, found, err := s.Get("absent"); err != nil || found {
				t.Fatalf("absent key: found=%v err=%v", found, err)
			}

			if err := s.Set("k1", []byte("v1")); err != nil {
				t.Fatalf("set: %v", err)
			}
			raw, found, err := s.Get("k1")
			if err != nil || !found {
				t.Fatalf("get: found=%v err=%v", found, err)
			}
			if string(raw) != "v1" {
				t.Fatalf("got %q, want v1", raw)
			}

			if err := s.Set("k1", []byte("v2")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			raw, _, _ = s.Get("k1")
			if string(raw) != "v2" {
				t.Fatalf("overwrite not visible: %q", raw)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Delete("never-existed"); err != nil {
				t.Fatalf("delete absent key: %v", err)
			}

			if err := s.Set("k1", []byte("v1")); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := s.Delete("k1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, found, _ := s.Get("k1"); found {
				t.Fatal("key still present after delete")
			}
		})
	}
}

func TestStoreKeysPrefix(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			seed := map[string]string{
				"chat_messages_a":       "1",
				"chat_messages_b":       "2",
				"participant_state_a_x": "3",
				"other_app_setting":     "4",
			}
			for k, v := range seed {
				if err := s.Set(k, []byte(v)); err != nil {
					t.Fatalf("set %s: %v", k, err)
				}
			}

			keys, err := s.Keys("chat_messages_")
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			sort.Strings(keys)
			want := []string{"chat_messages_a", "chat_messages_b"}
			if len(keys) != len(want) {
				t.Fatalf("got %v, want %v", keys, want)
			}
			for i := range want {
				if keys[i] != want[i] {
					t.Fatalf("got %v, want %v", keys, want)
				}
			}

			all, err := s.Keys("")
			if err != nil {
				t.Fatalf("keys empty prefix: %v", err)
			}
			if len(all) != len(seed) {
				t.Fatalf("expected %d keys, got %d", len(seed), len(all))
			}
		})
	}
}

func TestStoreBinaryValues(t *testing.T) {
	val := []byte{0x00, 0xff, 0x10, '\n', 0x00}
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set("bin", val); err != nil {
				t.Fatalf("set: %v", err)
			}
			raw, found, err := s.Get("bin")
			if err != nil || !found {
				t.Fatalf("get: found=%v err=%v", found, err)
			}
			if len(raw) != len(val) {
				t.Fatalf("length %d, want %d", len(raw), len(val))
			}
			for i := range val {
				if raw[i] != val[i] {
					t.Fatalf("byte %d: %x, want %x", i, raw[i], val[i])
				}
			}
		})
	}
}

func TestSQLiteKeysEscapesWildcards(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()

	if err := s.Set("pre%fix_a", []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set("preXfix_a", []byte("2")); err != nil {
		t.Fatalf("set: %v", err)
	}

	keys, err := s.Keys("pre%fix_")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "pre%fix_a" {
		t.Fatalf("wildcard not escaped: %v", keys)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set("k1", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	raw, found, err := s.Get("k1")
	if err != nil || !found {
		t.Fatalf("get after reopen: found=%v err=%v", found, err)
	}
	if string(raw) != "v1" {
		t.Fatalf("got %q, want v1", raw)
	}
}

func TestPebblePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.pebble")

	s, err := OpenPebble(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set("k1", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenPebble(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	raw, found, err := s.Get("k1")
	if err != nil || !found {
		t.Fatalf("get after reopen: found=%v err=%v", found, err)
	}
	if string(raw) != "v1" {
		t.Fatalf("got %q, want v1", raw)
	}
}
