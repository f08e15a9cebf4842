package xstream

import (
	"sync"
)

// elem is an intrusive doubly linked list node. It is embedded in every
// object that participates in a container: execution streams for the global
// registries, work units for pool membership. The back-reference in value
// lets a pop recover the owning object without a map lookup.
type elem struct {
	prev, next *elem
	ctn        *contn
	value      any
}

// contn is a container of intrusive elements with internal synchronization.
// It supports O(1) push, pop at either end, and removal of an arbitrary
// member, which is what the registries and pool disciplines need.
type contn struct {
	mu   sync.Mutex
	root elem // sentinel; root.next is the front, root.prev the back
	size int
}

// lazyInit links the sentinel to itself on first use. Must be called with
// mu held.
func (c *contn) lazyInit() {
	if c.root.next == nil {
		c.root.next = &c.root
		c.root.prev = &c.root
	}
}

// pushBack appends e to the container. It is an invariant violation for e
// to already belong to a container.
func (c *contn) pushBack(e *elem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lazyInit()
	if e.ctn != nil {
		panic("xstream: element already belongs to a container")
	}
	e.prev = c.root.prev
	e.next = &c.root
	c.root.prev.next = e
	c.root.prev = e
	e.ctn = c
	c.size++
}

// popFront removes and returns the front element, or nil when empty.
func (c *contn) popFront() *elem {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lazyInit()
	if c.size == 0 {
		return nil
	}
	return c.unlink(c.root.next)
}

// popBack removes and returns the back element, or nil when empty.
func (c *contn) popBack() *elem {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lazyInit()
	if c.size == 0 {
		return nil
	}
	return c.unlink(c.root.prev)
}

// remove detaches e from this container. It returns false when e does not
// belong to this container, which callers treat as losing a benign race.
func (c *contn) remove(e *elem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.ctn != c {
		return false
	}
	c.unlink(e)
	return true
}

// unlink detaches e. Must be called with mu held and e a member.
func (c *contn) unlink(e *elem) *elem {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
	e.ctn = nil
	c.size--
	return e
}

// len returns the number of elements in the container.
func (c *contn) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
