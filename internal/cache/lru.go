package cache

// lruNode is a node of an intrusive LRU list. It keeps its key so the
// owner can delete the map entry of an evicted node.
type lruNode[K comparable] struct {
	key  K
	cost int64
	prev *lruNode[K]
	next *lruNode[K]
}

// lruList orders nodes by recency: head is the most recently used.
// The list is not thread-safe.
type lruList[K comparable] struct {
	head *lruNode[K]
	tail *lruNode[K]
	len  int
}

func (l *lruList[K]) Len() int { return l.len }

// PushFront inserts a new node for key as the most recently used.
func (l *lruList[K]) PushFront(key K, cost int64) *lruNode[K] {
	n := &lruNode[K]{key: key, cost: cost}
	l.link(n)
	return n
}

// MoveToFront marks n as the most recently used.
func (l *lruList[K]) MoveToFront(n *lruNode[K]) {
	if n == l.head {
		return
	}
	l.unlink(n)
	l.link(n)
}

// Remove unlinks n.
func (l *lruList[K]) Remove(n *lruNode[K]) { l.unlink(n) }

// Back returns the least recently used node, or nil.
func (l *lruList[K]) Back() *lruNode[K] { return l.tail }

func (l *lruList[K]) link(n *lruNode[K]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.len++
}

func (l *lruList[K]) unlink(n *lruNode[K]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}
