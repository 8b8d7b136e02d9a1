package kv

// Store is the durable key-value medium the session cache writes to.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(key string) error
	// Keys lists every stored key beginning with prefix.
	Keys(prefix string) ([]string, error)
	Close() error
}
