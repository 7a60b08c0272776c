package archivestore

import (
	"bytes"
	"context"
	"sync"
)

type MemorySnapshots struct {
	mu   sync.Mutex
	data []byte
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{}
}

func (m *MemorySnapshots) ReadSnapshot(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return bytes.Clone(m.data), nil
}

func (m *MemorySnapshots) WriteSnapshot(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = bytes.Clone(data)
	if m.data == nil {
		m.data = []byte{}
	}
	return nil
}
