package spanz

import "sync"

// IDPool hands out IDs made ahead of time by a background goroutine, so
// starting a span rarely waits on the random source.
type IDPool struct {
	ready     chan string
	quit      chan struct{}
	closeOnce sync.Once
	newID     func() string
}

// NewIDPool creates a pool holding up to capacity IDs made by factory.
// Capacities below one are raised to one.
func NewIDPool(capacity int, factory func() string) *IDPool {
	p := &IDPool{
		ready: make(chan string, max(capacity, 1)),
		quit:  make(chan struct{}),
		newID: factory,
	}
	go p.fill()
	return p
}

// Get returns a pooled ID, or makes one when the pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ready:
		return id
	default:
		return p.newID()
	}
}

func (p *IDPool) fill() {
	for {
		select {
		case p.ready <- p.newID():
		case <-p.quit:
			return
		}
	}
}

// Close stops refilling. IDs already pooled are still served, and Get keeps
// working afterwards.
func (p *IDPool) Close() {
	p.closeOnce.Do(func() { close(p.quit) })
}
