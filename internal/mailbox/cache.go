package mailbox

// Cache is an intrusive FIFO list of elements that were skipped by the
// current behavior and wait to be replayed. It is owned by the consumer.
type Cache struct {
	head *Element
	tail *Element
	n    int
}

// PushBack appends e, which must not be in any list.
func (c *Cache) PushBack(e *Element) {
	e.next = nil
	e.prev = c.tail
	if c.tail == nil {
		c.head = e
	} else {
		c.tail.next = e
	}
	c.tail = e
	c.n++
}

// Remove unlinks e, which must be in the cache.
func (c *Cache) Remove(e *Element) {
	if e.prev == nil {
		c.head = e.next
	} else {
		e.prev.next = e.next
	}

	if e.next == nil {
		c.tail = e.prev
	} else {
		e.next.prev = e.prev
	}

	e.next, e.prev = nil, nil
	c.n--
}

// Front returns the oldest element, or nil.
func (c *Cache) Front() *Element {
	return c.head
}

// Next returns the element after e, or nil.
func (c *Cache) Next(e *Element) *Element {
	return e.next
}

// Len returns the number of cached elements.
func (c *Cache) Len() int {
	return c.n
}

// Drain removes every element, oldest first, handing each to fn.
func (c *Cache) Drain(fn func(e *Element)) {
	for e := c.head; e != nil; {
		next := e.next
		e.next, e.prev = nil, nil
		fn(e)
		e = next
	}

	c.head, c.tail, c.n = nil, nil, 0
}
