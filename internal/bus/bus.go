// Package bus defines the publish/subscribe/RPC surface the offloading server
// talks to. The production implementation is the WAMP client in internal/wamp;
// LocalBus is an in-process broker used by tests and embedded setups.
package bus

import (
	"context"
	"errors"
)

var ErrProcedureExists = errors.New("procedure already exists")
var ErrNoSuchProcedure = errors.New("no such procedure")
var ErrClosed = errors.New("bus closed")

// EventHandler consumes one event delivered on a subscribed topic.
type EventHandler func(ctx context.Context, args Args)

// Invocation carries the arguments of a procedure call. Progress is nil unless
// the caller asked for progressive results.
type Invocation struct {
	Args     Args
	Progress func(args ...interface{}) error
}

// ProcedureHandler serves calls to a registered procedure.
type ProcedureHandler func(ctx context.Context, inv *Invocation) (Args, error)

type Subscription struct {
	ID    uint64
	Topic string
}

type Registration struct {
	ID        uint64
	Procedure string
}

// Publisher is the subset of Bus needed to emit events.
type Publisher interface {
	Publish(ctx context.Context, topic string, args ...interface{}) error
}

// Registrar is the subset of Bus needed to expose procedures.
type Registrar interface {
	Register(ctx context.Context, procedure string, h ProcedureHandler) (*Registration, error)
}

type Bus interface {
	Publisher
	Registrar
	Subscribe(ctx context.Context, topic string, h EventHandler) (*Subscription, error)
	Unregister(ctx context.Context, reg *Registration) error
	// Call invokes a procedure. If progress is not nil, progressive results are
	// requested and delivered to it before Call returns the final result.
	Call(ctx context.Context, procedure string, progress func(Args), args ...interface{}) (Args, error)
	SessionID() string
	// Done is closed when the session ends.
	Done() <-chan struct{}
	Close() error
}
