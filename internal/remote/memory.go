package remote

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
	"github.com/google/uuid"
)

var _ service.RemoteStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory RemoteStore. Documents within a collection are
// returned in creation order.
type MemoryStore struct {
	collections map[string]map[string]map[string]any
	order       map[string][]string
	calls       map[string]int

	// Fault injection. Each hook, when set, is consulted before the operation.
	CommitErr func(writes int) error
	QueryErr  func(collection string) error
	GetErr    func(collection, id string) error
	SetErr    func(collection, id string) error

	mu sync.Mutex
}

// NewMemoryStore creates an empty in-memory remote store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
		order:       make(map[string][]string),
		calls:       make(map[string]int),
	}
}

// NewDocumentID allocates a random identifier.
func (m *MemoryStore) NewDocumentID(_ string) string {
	m.mu.Lock()
	m.calls["NewDocumentID"]++
	m.mu.Unlock()
	return uuid.NewString()
}

// GetDocument returns a copy of the stored document.
func (m *MemoryStore) GetDocument(ctx context.Context, collection, id string) (*service.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetDocument"]++

	if m.GetErr != nil {
		if err := m.GetErr(collection, id); err != nil {
			return nil, err
		}
	}

	data, ok := m.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, common.ErrNotFound)
	}
	return &service.Document{ID: id, Data: cloneFields(data)}, nil
}

// SetDocument writes a single document.
func (m *MemoryStore) SetDocument(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["SetDocument"]++

	if m.SetErr != nil {
		if err := m.SetErr(collection, id); err != nil {
			return err
		}
	}

	m.setLocked(collection, id, data, merge)
	return nil
}

// QueryEqual returns documents whose field equals value.
func (m *MemoryStore) QueryEqual(ctx context.Context, collection, field string, value any) ([]service.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["QueryEqual"]++

	if m.QueryErr != nil {
		if err := m.QueryErr(collection); err != nil {
			return nil, err
		}
	}

	var docs []service.Document
	for _, id := range m.order[collection] {
		data := m.collections[collection][id]
		if v, ok := data[field]; ok && reflect.DeepEqual(v, value) {
			docs = append(docs, service.Document{ID: id, Data: cloneFields(data)})
		}
	}
	return docs, nil
}

// NewBatch starts an atomic write batch.
func (m *MemoryStore) NewBatch() service.WriteBatch {
	return &memoryBatch{store: m}
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Put seeds a document directly, bypassing call accounting.
func (m *MemoryStore) Put(collection, id string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(collection, id, data, false)
}

// Documents returns copies of all documents in a collection in creation order.
func (m *MemoryStore) Documents(collection string) []service.Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]service.Document, 0, len(m.order[collection]))
	for _, id := range m.order[collection] {
		docs = append(docs, service.Document{ID: id, Data: cloneFields(m.collections[collection][id])})
	}
	return docs
}

// Calls returns the number of times the named operation was invoked.
// Commit counts are recorded under "Commit".
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of remote operations of any kind.
func (m *MemoryStore) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MemoryStore) setLocked(collection, id string, data map[string]any, merge bool) {
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		m.collections[collection] = docs
	}

	existing, exists := docs[id]
	if !exists {
		m.order[collection] = append(m.order[collection], id)
	}

	if merge && exists {
		docs[id] = mergeFields(existing, data)
		return
	}
	docs[id] = cloneFields(data)
}

// mergeFields applies data over existing the way a Firestore MergeAll write
// does: nested maps are merged key by key, any other value replaces.
func mergeFields(existing, data map[string]any) map[string]any {
	merged := cloneFields(existing)
	for key, value := range data {
		nested, isMap := value.(map[string]any)
		current, hasMap := merged[key].(map[string]any)
		if isMap && hasMap {
			merged[key] = mergeFields(current, nested)
			continue
		}
		if isMap {
			merged[key] = cloneFields(nested)
			continue
		}
		merged[key] = value
	}
	return merged
}

func cloneFields(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		if nested, ok := value.(map[string]any); ok {
			out[key] = cloneFields(nested)
			continue
		}
		out[key] = value
	}
	return out
}

type memoryWrite struct {
	data       map[string]any
	collection string
	id         string
	merge      bool
}

type memoryBatch struct {
	store  *MemoryStore
	writes []memoryWrite
}

func (b *memoryBatch) Set(collection, id string, data map[string]any, merge bool) {
	b.writes = append(b.writes, memoryWrite{
		collection: collection,
		id:         id,
		data:       cloneFields(data),
		merge:      merge,
	})
}

func (b *memoryBatch) Len() int {
	return len(b.writes)
}

// Commit applies every write or none.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.calls["Commit"]++

	if b.store.CommitErr != nil {
		if err := b.store.CommitErr(len(b.writes)); err != nil {
			return err
		}
	}

	for _, w := range b.writes {
		b.store.setLocked(w.collection, w.id, w.data, w.merge)
	}
	return nil
}
