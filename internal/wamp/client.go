// Package wamp implements bus.Bus on top of a WAMP v2 router session, using
// the nexus client for the protocol.
package wamp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/transport"
	"github.com/gammazero/nexus/v3/wamp"
	"golang.org/x/net/proxy"

	"github.com/grussorusso/offloadledge/internal/bus"
)

var ErrAborted = errors.New("session aborted by router")

// errExecution is the error URI returned to callers when a procedure fails.
const errExecution = wamp.URI("mamoc.error.execution")

type Client struct {
	cli *client.Client

	nextID  uint64
	closing int32
	once    sync.Once
	// cancelled when the session ends, handlers run under it
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the router at url and joins realm. Connections honor the
// proxy settings of the environment (ALL_PROXY, NO_PROXY).
func Dial(url, realm string, timeout time.Duration) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg := client.Config{
		Realm:           realm,
		ResponseTimeout: timeout,
		Logger:          log.Default(),
		WsCfg: transport.WebsocketConfig{
			Dial: proxy.FromEnvironment().Dial,
		},
	}
	cli, err := client.ConnectNet(ctx, url, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to router at %s: %w", url, err)
	}
	return newClient(cli), nil
}

func newClient(cli *client.Client) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{cli: cli, ctx: ctx, cancel: cancel}
	go func() {
		<-cli.Done()
		cancel()
	}()
	return c
}

func (c *Client) id() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

func (c *Client) closed() bool {
	select {
	case <-c.cli.Done():
		return true
	default:
		return false
	}
}

// translate maps router error URIs onto the bus errors.
func (c *Client) translate(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, string(wamp.ErrProcedureAlreadyExists)):
		return fmt.Errorf("%v: %w", err, bus.ErrProcedureExists)
	case strings.Contains(msg, string(wamp.ErrNoSuchProcedure)):
		return fmt.Errorf("%v: %w", err, bus.ErrNoSuchProcedure)
	case c.closed():
		return fmt.Errorf("%v: %w", err, bus.ErrClosed)
	}
	return err
}

func (c *Client) Publish(ctx context.Context, topic string, args ...interface{}) error {
	if c.closed() {
		return bus.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.translate(c.cli.Publish(topic, nil, wamp.List(args), nil))
}

func (c *Client) Subscribe(ctx context.Context, topic string, h bus.EventHandler) (*bus.Subscription, error) {
	if c.closed() {
		return nil, bus.ErrClosed
	}
	err := c.cli.Subscribe(topic, func(event *wamp.Event) {
		// events are handled concurrently, the nexus client delivers them in order
		go c.runEvent(h, bus.Args(event.Arguments))
	}, nil)
	if err != nil {
		return nil, c.translate(err)
	}
	return &bus.Subscription{ID: c.id(), Topic: topic}, nil
}

func (c *Client) runEvent(h bus.EventHandler, args bus.Args) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("wamp: event handler panicked: %v", r)
		}
	}()
	h(c.ctx, args)
}

func (c *Client) Register(ctx context.Context, procedure string, h bus.ProcedureHandler) (*bus.Registration, error) {
	if c.closed() {
		return nil, bus.ErrClosed
	}
	err := c.cli.Register(procedure, func(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
		return c.invoke(ctx, h, inv)
	}, nil)
	if err != nil {
		return nil, c.translate(err)
	}
	return &bus.Registration{ID: c.id(), Procedure: procedure}, nil
}

func (c *Client) invoke(ctx context.Context, h bus.ProcedureHandler, inv *wamp.Invocation) (res client.InvokeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = client.InvokeResult{Err: errExecution, Args: wamp.List{fmt.Sprintf("procedure panicked: %v", r)}}
		}
	}()

	in := &bus.Invocation{Args: bus.Args(inv.Arguments)}
	if wantsProgress(inv.Details) {
		in.Progress = func(args ...interface{}) error {
			return c.cli.SendProgress(ctx, wamp.List(args), nil)
		}
	}
	out, err := h(ctx, in)
	if err != nil {
		return client.InvokeResult{Err: errExecution, Args: wamp.List{err.Error()}}
	}
	return client.InvokeResult{Args: wamp.List(out)}
}

func wantsProgress(details wamp.Dict) bool {
	v, ok := details["receive_progress"].(bool)
	return ok && v
}

func (c *Client) Unregister(ctx context.Context, reg *bus.Registration) error {
	if c.closed() {
		return bus.ErrClosed
	}
	return c.translate(c.cli.Unregister(reg.Procedure))
}

func (c *Client) Call(ctx context.Context, procedure string, progress func(bus.Args), args ...interface{}) (bus.Args, error) {
	if c.closed() {
		return nil, bus.ErrClosed
	}
	var options wamp.Dict
	var onProgress client.ProgressHandler
	if progress != nil {
		options = wamp.Dict{"receive_progress": true}
		onProgress = func(r *wamp.Result) {
			progress(bus.Args(r.Arguments))
		}
	}
	res, err := c.cli.Call(ctx, procedure, options, wamp.List(args), nil, onProgress)
	if err != nil {
		return nil, c.translate(err)
	}
	return bus.Args(res.Arguments), nil
}

func (c *Client) SessionID() string {
	return strconv.FormatUint(uint64(c.cli.ID()), 10)
}

func (c *Client) Done() <-chan struct{} {
	return c.cli.Done()
}

// Err blocks until the session ends and returns why: nil after Close,
// ErrAborted when the router or the connection ended it.
func (c *Client) Err() error {
	<-c.cli.Done()
	if atomic.LoadInt32(&c.closing) == 1 {
		return nil
	}
	return ErrAborted
}

// Close leaves the realm and tears the connection down.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		atomic.StoreInt32(&c.closing, 1)
		if !c.closed() {
			err = c.cli.Close()
		}
		c.cancel()
	})
	return err
}
