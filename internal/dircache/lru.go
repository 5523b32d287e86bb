package dircache

import "container/list"

// lruKey identifies one cache entry in the global LRU list. Rather than
// storing raw cross-pointers between the bucket map and the list (the
// cyclic-reference pattern the source uses via C++ iterators), every
// cache entry stores a stable *listElementHandle into this process-wide
// list; the list element's Value is the (server, path) key used to look
// the entry back up in its bucket map.
type lruKey struct {
	server string
	path   string
}

// listElementHandle wraps a *list.Element so cache.go never touches
// container/list directly and the handle's identity survives moves.
type listElementHandle struct {
	e *list.Element
}

func (h *listElementHandle) key() lruKey {
	return h.e.Value.(lruKey)
}

type lru struct {
	l *list.List // of lruKey
}

func newLRU() *lru {
	return &lru{l: list.New()}
}

func (r *lru) pushTailHandle(k lruKey) *listElementHandle {
	return &listElementHandle{e: r.l.PushBack(k)}
}

func (r *lru) moveToTail(h *listElementHandle) {
	r.l.MoveToBack(h.e)
}

func (r *lru) removeHandle(h *listElementHandle) {
	r.l.Remove(h.e)
}

func (r *lru) frontHandle() *listElementHandle {
	e := r.l.Front()
	if e == nil {
		return nil
	}
	return &listElementHandle{e: e}
}

func (r *lru) len() int {
	return r.l.Len()
}
