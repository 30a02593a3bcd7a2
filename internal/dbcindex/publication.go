package dbcindex

import (
	"sync"
	"sync/atomic"
)

// publication caches one built index together with the source stamps it was
// built from. Published values are immutable; readers load the pointer
// atomically and rebuilds swap in a fresh value. buildMu serializes rebuilds
// so concurrent requests do not duplicate work.
type publication[T any] struct {
	buildMu sync.Mutex
	cur     atomic.Pointer[published[T]]
}

type published[T any] struct {
	doc    T
	stamps map[string]SourceStamp
}

// get returns the cached value when it was built from exactly the given
// source stamps.
func (p *publication[T]) get(stamps map[string]SourceStamp) (T, bool) {
	cur := p.cur.Load()
	if cur == nil || !sameStamps(cur.stamps, stamps) {
		var zero T
		return zero, false
	}
	return cur.doc, true
}

func (p *publication[T]) put(doc T, stamps map[string]SourceStamp) {
	p.cur.Store(&published[T]{doc: doc, stamps: stamps})
}

func (p *publication[T]) drop() {
	p.cur.Store(nil)
}

func sameStamps(a, b map[string]SourceStamp) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
