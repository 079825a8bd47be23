package asyncx

// lockMode is what a wait node is queued for.
type lockMode uint8

const (
	modeRead lockMode = iota
	modeUpgrade
	modeExclusive
)

// waitNode is one queued acquisition: a CompletionSource plus intrusive
// queue links. A node lives in exactly one place at a time (the free pool,
// the wait queue, or borrowed by an active wait) and is recycled through
// Reset once its result has been consumed.
//
// The wake channel is the "future" half of the pair: the parked goroutine
// receives exactly one token per armed wait, sent by the node's continuation
// when whichever termination path wins. The channel is buffered (capacity 1)
// so the completing goroutine never blocks, and is drained by the waiter
// before the node is recycled, so it can be reused across generations.
type waitNode struct {
	source CompletionSource[struct{}]
	wake   Continuation
	signal chan struct{}

	mode  lockMode
	epoch uint16

	// queue links; guarded by the owning queue's region.
	queued     bool
	prev, next *waitNode
}

func newWaitNode() *waitNode {
	n := &waitNode{signal: make(chan struct{}, 1)}
	n.wake = Continuation{Fn: func(any) { n.signal <- struct{}{} }}
	return n
}

// pending reports whether the node's current wait is still undecided.
// A false result for a queued node means it was canceled or timed out while
// waiting; the drain discards such nodes and the waiter reclaims them.
func (n *waitNode) pending() bool {
	e, st := csUnpack(n.source.state.Load())
	return e == n.epoch && st == statusActivated
}

// nodePool supplies wait nodes. Both implementations are plain free lists
// reusing the nodes' next links; the only difference is behavior on
// exhaustion. Pools are guarded by the owning primitive's region: rent and
// recycle are only called with it held.
type nodePool interface {
	rent() (*waitNode, error)
	recycle(n *waitNode)
}

// heapNodePool grows on demand: an empty free list allocates.
type heapNodePool struct {
	free *waitNode
}

func (p *heapNodePool) rent() (*waitNode, error) {
	n := p.free
	if n == nil {
		return newWaitNode(), nil
	}
	p.free = n.next
	n.next = nil
	return n, nil
}

func (p *heapNodePool) recycle(n *waitNode) {
	n.next = p.free
	p.free = n
}

// boundedNodePool preallocates a fixed slab of nodes; rent fails once it is
// exhausted. Used when the maximum number of concurrent waiters is known up
// front, so steady-state waiting allocates nothing at all.
type boundedNodePool struct {
	free *waitNode
}

func newBoundedNodePool(capacity int) *boundedNodePool {
	p := &boundedNodePool{}
	for range capacity {
		n := newWaitNode()
		n.next = p.free
		p.free = n
	}
	return p
}

func (p *boundedNodePool) rent() (*waitNode, error) {
	n := p.free
	if n == nil {
		return nil, ErrConcurrencyExceeded
	}
	p.free = n.next
	n.next = nil
	return n, nil
}

func (p *boundedNodePool) recycle(n *waitNode) {
	n.next = p.free
	p.free = n
}
