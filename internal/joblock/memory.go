package joblock

import (
	"context"
	"sync"
)

// Memory is an in-process lock for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	held bool
}

// NewMemory returns an unheld in-process lock.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return false, nil
	}
	m.held = true
	return true, nil
}

func (m *Memory) Release(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return false, nil
	}
	m.held = false
	return true, nil
}

// Held reports whether the lock is currently taken.
func (m *Memory) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// Renew reports whether the lock is still held.
func (m *Memory) Renew(ctx context.Context) (bool, error) {
	return m.Held(), nil
}
