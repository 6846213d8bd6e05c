package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"genomarket/storage"
)

// Manager provides keyed, RLP-encoded access to runtime state on top of a
// storage backend. Keys are hashed with keccak256 before they reach the
// backend.
//
// Atomic scopes buffer every write in an overlay so a failing state
// transition leaves no trace. Manager is not safe for concurrent use; the
// runtime serialises all transitions.
type Manager struct {
	db     storage.Database
	frames []*frame
}

type frame struct {
	overlay *storage.Overlay
	hooks   []func()
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) current() storage.Database {
	if n := len(m.frames); n > 0 {
		return m.frames[n-1].overlay
	}
	return m.db
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager not configured")
	}
	data, err := m.current().Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut RLP-encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.current().Put(kvKey(key), encoded)
}

// KVDelete removes key.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	return m.current().Delete(kvKey(key))
}

// KVHas reports whether key is present.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager not configured")
	}
	_, err := m.current().Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Atomic runs fn inside a write-buffered scope. Writes become visible to the
// parent scope (or the backing database) only if fn returns nil. Scopes nest:
// an inner failure discards the inner writes while the outer scope may still
// commit.
func (m *Manager) Atomic(fn func() error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	f := &frame{overlay: storage.NewOverlay(m.current())}
	m.frames = append(m.frames, f)
	popped := false
	pop := func() {
		if !popped {
			m.frames = m.frames[:len(m.frames)-1]
			popped = true
		}
	}
	defer pop()

	if err := fn(); err != nil {
		return err
	}
	if err := f.overlay.Commit(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	pop()
	if n := len(m.frames); n > 0 {
		parent := m.frames[n-1]
		parent.hooks = append(parent.hooks, f.hooks...)
		return nil
	}
	for _, hook := range f.hooks {
		hook()
	}
	return nil
}

// AfterCommit schedules fn to run once the outermost atomic scope commits. It
// is dropped if any enclosing scope fails. Outside an atomic scope fn runs
// immediately.
func (m *Manager) AfterCommit(fn func()) {
	if fn == nil {
		return
	}
	if m == nil || len(m.frames) == 0 {
		fn()
		return
	}
	top := m.frames[len(m.frames)-1]
	top.hooks = append(top.hooks, fn)
}

// InAtomic reports whether an atomic scope is open.
func (m *Manager) InAtomic() bool {
	return m != nil && len(m.frames) > 0
}
