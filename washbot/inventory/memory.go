package inventory

import (
	"context"
	"sync"
)

// MemoryStore is a RowStore held in process memory. It backs tests and
// single-node deployments where the shared spreadsheet is not in play.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][][]string)}
}

func (m *MemoryStore) ReadAll(_ context.Context, collection string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.collections[collection]
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

func (m *MemoryStore) ReadRow(_ context.Context, collection string, pos int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.collections[collection]
	if pos < 1 || pos > len(rows) {
		return nil, ErrRowNotFound
	}
	return append([]string(nil), rows[pos-1]...), nil
}

func (m *MemoryStore) AppendRow(_ context.Context, collection string, row []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], append([]string(nil), row...))
	return len(m.collections[collection]), nil
}

func (m *MemoryStore) DeleteRow(_ context.Context, collection string, pos int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.collections[collection]
	if pos < 1 || pos > len(rows) {
		return ErrRowNotFound
	}
	m.collections[collection] = append(rows[:pos-1], rows[pos:]...)
	return nil
}

func (m *MemoryStore) UpdateCell(_ context.Context, collection string, pos, col int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.collections[collection]
	if pos < 1 || pos > len(rows) {
		return ErrRowNotFound
	}
	row := rows[pos-1]
	for len(row) <= col {
		row = append(row, "")
	}
	row[col] = value
	rows[pos-1] = row
	return nil
}
