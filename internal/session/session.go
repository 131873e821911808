// Package session wires the offloading server into a bus session.
package session

import (
	"context"
	"fmt"
	"log"

	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/stats"
)

// StatsSource samples host statistics.
type StatsSource interface {
	Fetch(ctx context.Context) (stats.Snapshot, error)
}

// Handlers are the bus endpoints exposed during a session.
type Handlers struct {
	Offload      bus.EventHandler
	FileReceived bus.EventHandler
	Progressive  bus.ProcedureHandler
}

type Lifecycle struct {
	bus      bus.Bus
	topics   bus.Topics
	stats    StatsSource
	handlers Handlers

	subscriptions []*bus.Subscription
	registration  *bus.Registration
}

func NewLifecycle(b bus.Bus, topics bus.Topics, stats StatsSource, handlers Handlers) *Lifecycle {
	return &Lifecycle{bus: b, topics: topics, stats: stats, handlers: handlers}
}

// OnJoin announces the host statistics once, then exposes the progressive
// transfer procedure and subscribes to offload and file events. A failed
// announcement is only logged.
func (l *Lifecycle) OnJoin(ctx context.Context) error {
	log.Printf("Offloading server attached on session %s\n", l.bus.SessionID())

	l.announce(ctx)

	reg, err := l.bus.Register(ctx, l.topics.Progressive(), l.handlers.Progressive)
	if err != nil {
		return fmt.Errorf("could not register %s: %w", l.topics.Progressive(), err)
	}
	l.registration = reg

	for _, s := range []struct {
		topic   string
		handler bus.EventHandler
	}{
		{l.topics.OffloadRequest(), l.handlers.Offload},
		{l.topics.FileReceived(), l.handlers.FileReceived},
	} {
		sub, err := l.bus.Subscribe(ctx, s.topic, s.handler)
		if err != nil {
			return fmt.Errorf("could not subscribe to %s: %w", s.topic, err)
		}
		log.Printf("Subscribed to %s with %d\n", s.topic, sub.ID)
		l.subscriptions = append(l.subscriptions, sub)
	}
	return nil
}

func (l *Lifecycle) announce(ctx context.Context) {
	snap, err := l.stats.Fetch(ctx)
	if err != nil {
		log.Printf("Could not fetch server stats: %v\n", err)
		return
	}
	if err := l.bus.Publish(ctx, l.topics.StatsAnnounce(), snap.CPU, snap.Memory, snap.Battery); err != nil {
		log.Printf("Could not publish server stats: %v\n", err)
		return
	}
	log.Printf("Published server stats (cpu %.1f%%, mem %.1f%%, battery %.1f%%)\n", snap.CPU, snap.Memory, snap.Battery)
}

// OnLeave only logs: class units and promoted procedures outlive the session.
func (l *Lifecycle) OnLeave() {
	log.Printf("Disconnected from session %s\n", l.bus.SessionID())
}

// Subscriptions returns the subscriptions made by OnJoin.
func (l *Lifecycle) Subscriptions() []*bus.Subscription {
	return l.subscriptions
}

// Run joins, then blocks until the session ends or ctx is cancelled.
func (l *Lifecycle) Run(ctx context.Context) error {
	if err := l.OnJoin(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-l.bus.Done():
	}
	l.OnLeave()
	return nil
}
