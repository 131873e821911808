package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grussorusso/offloadledge/internal/bus"
)

func TestOffloadWaitsForResult(t *testing.T) {
	b := bus.NewLocalBus()
	topics := bus.Topics{}
	var received bus.Args
	_, err := b.Subscribe(context.Background(), topics.OffloadRequest(), func(ctx context.Context, args bus.Args) {
		received = args
		_ = b.Publish(ctx, topics.OffloadResult(), "42", 0.5)
	})
	require.NoError(t, err)

	output, duration, err := Offload(context.Background(), b, topics, OffloadRequest{
		Source: "Android", Operation: "foo", Code: "int foo() { return 42; }", ResourceName: "run", Params: "{}",
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "42", output)
	assert.Equal(t, 0.5, duration)

	b.Drain()
	assert.Equal(t, bus.Args{"Android", "foo", "int foo() { return 42; }", "run", "{}"}, received)
}

func TestOffloadTimesOut(t *testing.T) {
	b := bus.NewLocalBus()
	_, _, err := Offload(context.Background(), b, bus.Topics{}, OffloadRequest{Source: "Android", Operation: "foo"}, 10*time.Millisecond)
	assert.True(t, errors.Is(err, ErrNoResult))
}

func TestSendFile(t *testing.T) {
	b := bus.NewLocalBus()
	topics := bus.Topics{Prefix: "uk.ac.standrews.cs.mamoc."}
	got := make(chan bus.Args, 1)
	_, err := b.Subscribe(context.Background(), topics.FileReceived(), func(ctx context.Context, args bus.Args) {
		got <- args
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	require.NoError(t, SendFile(context.Background(), b, topics, "Android", path))

	select {
	case args := <-got:
		assert.Equal(t, bus.Args{"Android", "input.txt", "hello"}, args)
	case <-time.After(time.Second):
		t.Fatal("file event not delivered")
	}
}

func TestProgressiveAndCall(t *testing.T) {
	b := bus.NewLocalBus()
	topics := bus.Topics{}
	_, err := b.Register(context.Background(), topics.Progressive(), func(ctx context.Context, inv *bus.Invocation) (bus.Args, error) {
		n, _ := inv.Args.Int(0)
		for i := 0; i < n; i++ {
			if inv.Progress != nil {
				_ = inv.Progress(i)
			}
		}
		return bus.Args{n}, nil
	})
	require.NoError(t, err)
	_, err = b.Register(context.Background(), "compute", func(ctx context.Context, inv *bus.Invocation) (bus.Args, error) {
		return bus.Args{inv.Args.String(0) + inv.Args.String(1), 1.5, ""}, nil
	})
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := Progressive(context.Background(), b, topics, 3, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "progress: 0\nprogress: 1\nprogress: 2\n", out.String())

	output, duration, errs, err := Call(context.Background(), b, "compute", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "ab", output)
	assert.Equal(t, 1.5, duration)
	assert.Equal(t, "", errs)
}
