package httpengine

import (
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
)

// Runtime identifies an executor created by [RuntimeInit].
type Runtime uint32

// ClientContext identifies a client context created by [ContextInit].
type ClientContext uint32

// RequestContext identifies a request created by [RequestNew].
type RequestContext uint32

// handle is the set of opaque handle types. The zero value is never issued.
type handle interface {
	~uint32
}

// table maps opaque handles onto live objects. Unknown handles are a caller
// error and panic.
type table[H handle, T any] struct {
	kind  string
	next  atomix.Uint32
	mu    sync.RWMutex
	items map[H]T
}

func newTable[H handle, T any](kind string) *table[H, T] {
	return &table[H, T]{
		kind:  kind,
		items: make(map[H]T),
	}
}

func (t *table[H, T]) put(v T) H {
	h := H(t.next.Add(1))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[h] = v

	return h
}

func (t *table[H, T]) get(h H) T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.items[h]
	if !ok {
		panic(fmt.Sprintf("httpengine: unknown %s handle %d", t.kind, h))
	}
	return v
}

// take removes h and returns what it referred to.
func (t *table[H, T]) take(h H) T {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.items[h]
	if !ok {
		panic(fmt.Sprintf("httpengine: unknown %s handle %d", t.kind, h))
	}
	delete(t.items, h)

	return v
}

func (t *table[H, T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
