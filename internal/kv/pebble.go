package kv

import (
	"bytes"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// PebbleStore keeps the cache in a Pebble database. Prefix listing maps
// directly onto Pebble's ordered iteration.
type PebbleStore struct {
	db *pebble.DB
}

func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open pebble")
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) Get(key string) ([]byte, bool, error) {
	value, closer, err := p.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get")
	}
	out := append([]byte(nil), value...)
	if err := closer.Close(); err != nil {
		return nil, false, errors.Wrap(err, "close value")
	}
	return out, true, nil
}

func (p *PebbleStore) Set(key string, value []byte) error {
	return errors.Wrap(p.db.Set([]byte(key), value, pebble.Sync), "set")
}

func (p *PebbleStore) Delete(key string) error {
	return errors.Wrap(p.db.Delete([]byte(key), pebble.Sync), "delete")
}

func (p *PebbleStore) Keys(prefix string) ([]string, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "new iter")
	}
	defer iter.Close()

	pfx := []byte(prefix)
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate keys")
	}
	return out, nil
}
