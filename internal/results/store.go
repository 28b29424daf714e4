// Package results persists computed RATE results keyed by canonical request
// fingerprint. Because each computation is a pure function of its request,
// the store doubles as an idempotency/dedup layer for the service.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/uplift-eval/ratekit/internal/api"
)

// Store provides idempotent persistence for estimate responses.
type Store interface {
	// Get retrieves a stored response by request ID. Returns nil if not found.
	Get(ctx context.Context, requestID string) (*api.EstimateResponse, error)

	// Set stores a response with TTL. First write wins.
	Set(ctx context.Context, requestID string, resp *api.EstimateResponse, ttl time.Duration) error

	// Close releases resources.
	Close() error
}

// MemoryStore is an in-memory store with optional file snapshot.
type MemoryStore struct {
	mu       sync.RWMutex
	store    map[string]*entry
	snapshot string // optional file path for persistence
}

type entry struct {
	Response  *api.EstimateResponse `json:"response"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// NewMemoryStore creates an in-memory results store.
func NewMemoryStore(snapshotPath string) *MemoryStore {
	ms := &MemoryStore{
		store:    make(map[string]*entry),
		snapshot: snapshotPath,
	}

	if snapshotPath != "" {
		ms.loadSnapshot()
	}

	return ms
}

func (m *MemoryStore) Get(ctx context.Context, requestID string) (*api.EstimateResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.store[requestID]
	if !ok {
		return nil, nil
	}

	if time.Now().After(e.ExpiresAt) {
		return nil, nil // expired
	}

	return e.Response, nil
}

func (m *MemoryStore) Set(ctx context.Context, requestID string, resp *api.EstimateResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// First write wins
	if e, exists := m.store[requestID]; exists {
		if time.Now().Before(e.ExpiresAt) {
			return nil
		}
	}

	m.store[requestID] = &entry{
		Response:  resp,
		ExpiresAt: time.Now().Add(ttl),
	}

	if m.snapshot != "" {
		go m.saveSnapshot() // async to avoid blocking
	}

	return nil
}

func (m *MemoryStore) Close() error {
	if m.snapshot != "" {
		return m.saveSnapshot()
	}
	return nil
}

func (m *MemoryStore) loadSnapshot() error {
	data, err := os.ReadFile(m.snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no snapshot yet
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var snapshot map[string]*entry
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	now := time.Now()
	for k, v := range snapshot {
		if now.Before(v.ExpiresAt) {
			m.store[k] = v
		}
	}

	return nil
}

func (m *MemoryStore) saveSnapshot() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	toSave := make(map[string]*entry)
	for k, v := range m.store {
		if now.Before(v.ExpiresAt) {
			toSave[k] = v
		}
	}

	data, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.snapshot, data, 0600)
}
