package bus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/lithammer/shortuuid"
)

// LocalBus is an in-process broker. Events are dispatched in publish order,
// each subscriber invocation on its own goroutine, so a slow handler never
// holds back delivery to the others. Calls run on the caller's goroutine.
type LocalBus struct {
	mu        sync.RWMutex
	subs      map[string][]localSub
	procs     map[string]localProc
	nextID    uint64
	inflight  sync.WaitGroup
	sessionID string
	done      chan struct{}
	closeOnce sync.Once
}

type localSub struct {
	id      uint64
	handler EventHandler
}

type localProc struct {
	id      uint64
	handler ProcedureHandler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs:      make(map[string][]localSub),
		procs:     make(map[string]localProc),
		sessionID: shortuuid.New(),
		done:      make(chan struct{}),
	}
}

func (b *LocalBus) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *LocalBus) Publish(ctx context.Context, topic string, args ...interface{}) error {
	if b.closed() {
		return ErrClosed
	}
	b.mu.RLock()
	subs := append([]localSub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.inflight.Add(1)
		go func(h EventHandler) {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Event handler on %s panicked: %v", topic, r)
				}
			}()
			h(context.Background(), Args(args))
		}(s.handler)
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, topic string, h EventHandler) (*Subscription, error) {
	if b.closed() {
		return nil, ErrClosed
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], localSub{id: id, handler: h})
	b.mu.Unlock()
	return &Subscription{ID: id, Topic: topic}, nil
}

func (b *LocalBus) Register(ctx context.Context, procedure string, h ProcedureHandler) (*Registration, error) {
	if b.closed() {
		return nil, ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.procs[procedure]; exists {
		return nil, fmt.Errorf("%s: %w", procedure, ErrProcedureExists)
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.procs[procedure] = localProc{id: id, handler: h}
	return &Registration{ID: id, Procedure: procedure}, nil
}

func (b *LocalBus) Unregister(ctx context.Context, reg *Registration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[reg.Procedure]
	if !ok || p.id != reg.ID {
		return fmt.Errorf("%s: %w", reg.Procedure, ErrNoSuchProcedure)
	}
	delete(b.procs, reg.Procedure)
	return nil
}

func (b *LocalBus) Call(ctx context.Context, procedure string, progress func(Args), args ...interface{}) (res Args, err error) {
	if b.closed() {
		return nil, ErrClosed
	}
	b.mu.RLock()
	p, ok := b.procs[procedure]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", procedure, ErrNoSuchProcedure)
	}

	inv := &Invocation{Args: Args(args)}
	if progress != nil {
		inv.Progress = func(pargs ...interface{}) error {
			progress(Args(pargs))
			return nil
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("procedure %s panicked: %v", procedure, r)
		}
	}()
	return p.handler(ctx, inv)
}

// Registered reports whether a procedure is currently bound.
func (b *LocalBus) Registered(procedure string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.procs[procedure]
	return ok
}

// Drain waits until every dispatched event handler has returned.
func (b *LocalBus) Drain() {
	b.inflight.Wait()
}

func (b *LocalBus) SessionID() string {
	return b.sessionID
}

func (b *LocalBus) Done() <-chan struct{} {
	return b.done
}

func (b *LocalBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
