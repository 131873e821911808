// Package procedure keeps track of the operations promoted to directly
// callable bus procedures.
package procedure

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/LK4D4/trylock"
	"github.com/cornelk/hashmap"
	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/engine"
)

var ErrAlreadyRegistered = errors.New("procedure already registered")
var ErrBindingInProgress = errors.New("procedure binding in progress")
var ErrNotRegistered = errors.New("procedure not registered")

// Invoker runs a promoted operation with the caller's resource name and input.
type Invoker func(ctx context.Context, resourceName, input string) (*engine.Result, error)

// Claimer grants cluster-wide ownership of a procedure name, so that only one
// node sharing the router registers it.
type Claimer interface {
	Claim(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

// Binding is a procedure name bound to the class it was promoted with.
type Binding struct {
	Name         string
	ClassID      string
	RegisteredAt time.Time

	invoke       Invoker
	registration *bus.Registration
	// held while the binding is being set up or torn down
	mtx   trylock.Mutex
	calls int64
}

// Calls returns how many times the procedure was invoked.
func (b *Binding) Calls() int64 {
	return atomic.LoadInt64(&b.calls)
}

func (b *Binding) call(ctx context.Context, resourceName, input string) (*engine.Result, error) {
	if !b.mtx.TryLock() {
		return nil, fmt.Errorf("%s: %w", b.Name, ErrBindingInProgress)
	}
	b.mtx.Unlock()
	atomic.AddInt64(&b.calls, 1)
	return b.invoke(ctx, resourceName, input)
}

// handle serves bus calls: args are (resourceName, input), the reply is
// (output, duration, diagnostics).
func (b *Binding) handle(ctx context.Context, inv *bus.Invocation) (bus.Args, error) {
	res, err := b.call(ctx, inv.Args.String(0), inv.Args.String(1))
	if err != nil {
		return nil, err
	}
	return bus.Args{res.Output, res.Duration, res.Diagnostics}, nil
}

type Registry struct {
	registrar bus.Registrar
	claimer   Claimer
	bindings  *hashmap.Map[string, *Binding]
}

// NewRegistry returns a registry exposing procedures through registrar.
// claimer may be nil.
func NewRegistry(registrar bus.Registrar, claimer Claimer) *Registry {
	return &Registry{
		registrar: registrar,
		claimer:   claimer,
		bindings:  hashmap.New[string, *Binding](),
	}
}

// Register binds name to invoke at most once. Any later attempt, concurrent
// or not, gets ErrAlreadyRegistered. A caller arriving while another one is
// still claiming or registering the name waits for it: if that setup fails,
// the waiting caller takes over instead of being rejected.
func (r *Registry) Register(ctx context.Context, name, classID string, invoke Invoker) (*Binding, error) {
	b := &Binding{Name: name, ClassID: classID, invoke: invoke}
	b.mtx.Lock()
	defer b.mtx.Unlock()

	for !r.bindings.Insert(name, b) {
		actual, ok := r.bindings.Get(name)
		if !ok {
			continue
		}
		// wait for the setup of actual to complete
		actual.mtx.Lock()
		actual.mtx.Unlock()
		if current, ok := r.bindings.Get(name); ok && current == actual {
			return actual, fmt.Errorf("%s: %w", name, ErrAlreadyRegistered)
		}
	}

	if r.claimer != nil {
		ok, err := r.claimer.Claim(ctx, name)
		if err != nil {
			r.bindings.Del(name)
			return nil, fmt.Errorf("could not claim %s: %v", name, err)
		}
		if !ok {
			r.bindings.Del(name)
			return nil, fmt.Errorf("%s claimed by another node: %w", name, ErrAlreadyRegistered)
		}
	}

	reg, err := r.registrar.Register(ctx, name, b.handle)
	if err != nil {
		r.bindings.Del(name)
		r.release(ctx, name)
		if errors.Is(err, bus.ErrProcedureExists) {
			return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRegistered)
		}
		return nil, err
	}

	b.registration = reg
	b.RegisteredAt = time.Now()
	log.Printf("Registered procedure %s (class %s)\n", name, classID)
	return b, nil
}

func (r *Registry) release(ctx context.Context, name string) {
	if r.claimer == nil {
		return
	}
	if err := r.claimer.Release(ctx, name); err != nil {
		log.Printf("Could not release claim on %s: %v\n", name, err)
	}
}

// Get returns the binding of a registered procedure.
func (r *Registry) Get(name string) (*Binding, bool) {
	return r.bindings.Get(name)
}

// Call invokes a registered procedure without going through the bus.
func (r *Registry) Call(ctx context.Context, name, resourceName, input string) (*engine.Result, error) {
	b, ok := r.bindings.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}
	return b.call(ctx, resourceName, input)
}

// Names returns the registered procedure names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.bindings.Len())
	r.bindings.Range(func(name string, _ *Binding) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

type unregisterer interface {
	Unregister(ctx context.Context, reg *bus.Registration) error
}

// Reset forgets every binding and releases the cluster claims. It is called
// when the session ends; registrations still held by an open bus are dropped too.
func (r *Registry) Reset(ctx context.Context) {
	u, canUnregister := r.registrar.(unregisterer)
	for _, name := range r.Names() {
		b, ok := r.bindings.Get(name)
		if !ok {
			continue
		}
		b.mtx.Lock()
		if canUnregister && b.registration != nil {
			if err := u.Unregister(ctx, b.registration); err != nil && !errors.Is(err, bus.ErrClosed) {
				log.Printf("Could not unregister %s: %v\n", name, err)
			}
		}
		r.bindings.Del(name)
		r.release(ctx, name)
		b.mtx.Unlock()
	}
}
