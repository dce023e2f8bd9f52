package editor

import (
	"sync"
	"time"
)

// DefaultDragTimeout is how long a drag may last without a drop or cancel before it is cancelled.
const DefaultDragTimeout = 5 * time.Second

// Phase of the drag controller.
type Phase int

const (
	Idle Phase = iota
	Dragging
	Hovering
)

func (p Phase) String() string {
	switch p {
	case Dragging:
		return "dragging"
	case Hovering:
		return "hovering"
	default:
		return "idle"
	}
}

// DragState is a snapshot of the controller state. Source and Target are block IDs.
type DragState struct {
	Phase  Phase
	Source string
	Target string
}

type (
	// Stopper is the part of *time.Timer the controller needs.
	Stopper interface {
		Stop() bool
	}

	// AfterFunc schedules f after d, like time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Stopper

	DragOption func(*DragController)
)

func WithDragTimeout(d time.Duration) DragOption {
	return func(c *DragController) { c.timeout = d }
}

// WithAfterFunc replaces the clock used to arm the safety timeout.
func WithAfterFunc(f AfterFunc) DragOption {
	return func(c *DragController) { c.afterFunc = f }
}

// DragController translates pointer-drag gestures into Store.Reorder commands.
// It knows nothing about rendering; the safety timeout guards against lost pointer-release events.
type DragController struct {
	store     *Store
	timeout   time.Duration
	afterFunc AfterFunc

	mu    sync.Mutex
	state DragState
	timer Stopper
	gen   uint64 // drag generation, so that a stale timer never cancels a newer drag
}

func NewDragController(store *Store, opts ...DragOption) *DragController {
	c := &DragController{
		store:   store,
		timeout: DefaultDragTimeout,
		afterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *DragController) State() DragState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartDrag starts dragging the block. Rejected (returns false) when a drag is already in
// progress, or when the block does not exist or is fixed.
func (c *DragController) StartDrag(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != Idle {
		return false
	}
	b, ok := c.store.Get(id)
	if !ok || b.IsFixed {
		return false
	}

	c.gen++
	gen := c.gen
	c.state = DragState{Phase: Dragging, Source: id}
	if c.timeout > 0 {
		c.timer = c.afterFunc(c.timeout, func() { c.expire(gen) })
	}
	return true
}

// HoverOver records the block currently under the pointer.
func (c *DragController) HoverOver(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == Idle || id == c.state.Source || c.store.IndexOf(id) < 0 {
		return false
	}
	c.state.Phase = Hovering
	c.state.Target = id
	return true
}

// Drop ends the drag over the block id, moving the source block to its position.
// It reports whether the store was reordered.
func (c *DragController) Drop(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != Hovering || id != c.state.Target {
		return false
	}
	source := c.state.Source
	c.reset()

	idx := c.store.IndexOf(id)
	if idx < 0 {
		return false
	}
	return c.store.ReorderStrict(source, idx) == nil
}

// Cancel ends the drag without touching the store.
func (c *DragController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Close stops any pending timer.
func (c *DragController) Close() {
	c.Cancel()
}

func (c *DragController) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen && c.state.Phase != Idle {
		c.reset()
	}
}

func (c *DragController) reset() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = DragState{}
}
