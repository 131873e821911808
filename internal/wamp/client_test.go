package wamp

import (
	"context"
	"errors"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grussorusso/offloadledge/internal/bus"
)

const testRealm = "mamoc_realm"

func newTestRouter(t *testing.T) router.Router {
	r := newRouter(t)
	t.Cleanup(r.Close)
	return r
}

func newRouter(t *testing.T) router.Router {
	r, err := router.NewRouter(&router.Config{
		RealmConfigs: []*router.RealmConfig{{
			URI:           wamp.URI(testRealm),
			AnonymousAuth: true,
			AllowDisclose: true,
		}},
	}, log.Default())
	require.NoError(t, err)
	return r
}

func connect(t *testing.T, r router.Router) *Client {
	cli, err := client.ConnectLocal(r, client.Config{Realm: testRealm, Logger: log.Default()})
	require.NoError(t, err)
	c := newClient(cli)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDialJoinsRealm(t *testing.T) {
	srv := httptest.NewServer(router.NewWebsocketServer(newTestRouter(t)))
	defer srv.Close()

	c, err := Dial("ws"+strings.TrimPrefix(srv.URL, "http"), testRealm, 2*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, "0", c.SessionID())

	require.NoError(t, c.Close())
	assert.NoError(t, c.Err())
}

func TestDialUnreachableRouter(t *testing.T) {
	_, err := Dial("ws://127.0.0.1:1/ws", testRealm, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestPublishSubscribe(t *testing.T) {
	r := newTestRouter(t)
	publisher, subscriber := connect(t, r), connect(t, r)
	ctx := context.Background()

	got := make(chan bus.Args, 1)
	_, err := subscriber.Subscribe(ctx, "offloading.result", func(ctx context.Context, args bus.Args) {
		got <- args
	})
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(ctx, "offloading.result", "42", 0.5))
	select {
	case args := <-got:
		assert.Equal(t, "42", args.String(0))
		f, err := args.Float(1)
		require.NoError(t, err)
		assert.Equal(t, 0.5, f)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPanickingHandlerKeepsSession(t *testing.T) {
	r := newTestRouter(t)
	publisher, subscriber := connect(t, r), connect(t, r)
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	_, err := subscriber.Subscribe(ctx, "offloading.request", func(ctx context.Context, args bus.Args) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	})
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(ctx, "offloading.request", "Android"))
	require.NoError(t, publisher.Publish(ctx, "offloading.request", "Android"))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-subscriber.Done():
		t.Fatal("session ended after a handler panic")
	default:
	}
}

func TestRegisterTwiceReportsExisting(t *testing.T) {
	r := newTestRouter(t)
	a, b := connect(t, r), connect(t, r)
	noop := func(ctx context.Context, inv *bus.Invocation) (bus.Args, error) { return nil, nil }

	_, err := a.Register(context.Background(), "compute", noop)
	require.NoError(t, err)
	_, err = b.Register(context.Background(), "compute", noop)
	assert.True(t, errors.Is(err, bus.ErrProcedureExists), "%v", err)
}

func TestCallWithProgressiveResults(t *testing.T) {
	r := newTestRouter(t)
	callee, caller := connect(t, r), connect(t, r)
	ctx := context.Background()

	_, err := callee.Register(ctx, "fileTransfer.progressive", func(ctx context.Context, inv *bus.Invocation) (bus.Args, error) {
		n, err := inv.Args.Int(0)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			if inv.Progress != nil {
				if err := inv.Progress(i); err != nil {
					return nil, err
				}
			}
		}
		return bus.Args{n}, nil
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []int
	res, err := caller.Call(ctx, "fileTransfer.progressive", func(args bus.Args) {
		i, _ := args.Int(0)
		mu.Lock()
		got = append(got, i)
		mu.Unlock()
	}, 3)
	require.NoError(t, err)
	n, err := res.Int(0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestCallErrors(t *testing.T) {
	r := newTestRouter(t)
	callee, caller := connect(t, r), connect(t, r)
	ctx := context.Background()

	_, err := caller.Call(ctx, "missing", nil)
	assert.True(t, errors.Is(err, bus.ErrNoSuchProcedure), "%v", err)

	_, err = callee.Register(ctx, "failing", func(ctx context.Context, inv *bus.Invocation) (bus.Args, error) {
		return nil, errors.New("compile failed")
	})
	require.NoError(t, err)
	_, err = caller.Call(ctx, "failing", nil)
	assert.Error(t, err)
}

func TestUnregisterFreesName(t *testing.T) {
	r := newTestRouter(t)
	a, b := connect(t, r), connect(t, r)
	noop := func(ctx context.Context, inv *bus.Invocation) (bus.Args, error) { return bus.Args{"ok"}, nil }

	reg, err := a.Register(context.Background(), "compute", noop)
	require.NoError(t, err)
	require.NoError(t, a.Unregister(context.Background(), reg))

	_, err = b.Register(context.Background(), "compute", noop)
	assert.NoError(t, err)
}

func TestCloseEndsSession(t *testing.T) {
	c := connect(t, newTestRouter(t))
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session still open")
	}
	assert.NoError(t, c.Err())
	assert.True(t, errors.Is(c.Publish(context.Background(), "t"), bus.ErrClosed))
	_, err := c.Subscribe(context.Background(), "t", func(context.Context, bus.Args) {})
	assert.True(t, errors.Is(err, bus.ErrClosed))
	assert.NoError(t, c.Close())
}

func TestRouterShutdownAbortsSession(t *testing.T) {
	r := newRouter(t)
	c := connect(t, r)
	r.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session still open")
	}
	assert.True(t, errors.Is(c.Err(), ErrAborted))
}
