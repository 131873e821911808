// Package transfer implements the file exchange with mobile clients:
// paced progressive transfers and direct file receipt.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/platform"
)

var ErrInvalidChunkCount = errors.New("invalid chunk count")
var ErrInvalidFileName = errors.New("invalid file name")

const DefaultPacing = time.Second

type Channel struct {
	filesDir string
	pacing   time.Duration
}

// NewChannel returns a channel writing received files under filesDir and
// waiting pacing between two progressive chunks.
func NewChannel(filesDir string, pacing time.Duration) *Channel {
	return &Channel{filesDir: filesDir, pacing: pacing}
}

func (c *Channel) FilesDir() string {
	return c.filesDir
}

// Progressive notifies progress for chunks 0..n-1, one every pacing interval,
// and returns n. Without a progress sink it still waits one interval per chunk.
// Cancelling ctx interrupts the transfer between two chunks.
func (c *Channel) Progressive(ctx context.Context, n int, progress func(i int) error) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%d: %w", n, ErrInvalidChunkCount)
	}
	if progress == nil && c.pacing <= 0 {
		return n, ctx.Err()
	}
	for i := 0; i < n; i++ {
		if progress != nil {
			if err := progress(i); err != nil {
				return i, fmt.Errorf("progress %d not delivered: %v", i, err)
			}
		}
		if err := sleep(ctx, c.pacing); err != nil {
			return i + 1, err
		}
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ProgressiveHandler exposes Progressive as a bus procedure taking n.
func (c *Channel) ProgressiveHandler() bus.ProcedureHandler {
	return func(ctx context.Context, inv *bus.Invocation) (bus.Args, error) {
		n, err := inv.Args.Int(0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChunkCount, err)
		}
		var sink func(int) error
		if inv.Progress != nil {
			sink = func(i int) error { return inv.Progress(i) }
		}
		done, err := c.Progressive(ctx, n, sink)
		if err != nil {
			return nil, err
		}
		return bus.Args{done}, nil
	}
}

// ReceiveFile stores a file sent by an Android client verbatim. Files from
// iOS clients are acknowledged and dropped, other sources are ignored.
func (c *Channel) ReceiveFile(source platform.Platform, fileName string, content []byte) error {
	switch source {
	case platform.Android:
	case platform.IOS:
		log.Printf("Received file %s from iOS app: ignored\n", fileName)
		return nil
	default:
		log.Printf("Received file %s from unrecognized source: ignored\n", fileName)
		return nil
	}

	name := filepath.Base(fileName)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return fmt.Errorf("%q: %w", fileName, ErrInvalidFileName)
	}
	if err := os.MkdirAll(c.filesDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(c.filesDir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("could not write %s: %v", path, err)
	}
	log.Printf("Received file %s (%d bytes)\n", path, len(content))
	return nil
}

// FileReceivedHandler consumes file events: (source, fileName, fileContent).
func (c *Channel) FileReceivedHandler() bus.EventHandler {
	return func(ctx context.Context, args bus.Args) {
		source := platform.Parse(args.String(0))
		if err := c.ReceiveFile(source, args.String(1), []byte(args.String(2))); err != nil {
			log.Printf("File receipt failed: %v\n", err)
		}
	}
}
