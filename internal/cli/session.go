package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/grussorusso/offloadledge/internal/bus"
)

var ErrNoResult = errors.New("no result received")

// OffloadRequest mirrors the payload of an offload event.
type OffloadRequest struct {
	Source       string
	Operation    string
	Code         string
	ResourceName string
	Params       string
}

// Offload publishes an offload event and waits for the next result. Results
// are broadcast, so with several clients the first one seen is returned.
func Offload(ctx context.Context, b bus.Bus, t bus.Topics, req OffloadRequest, wait time.Duration) (string, float64, error) {
	results := make(chan bus.Args, 1)
	_, err := b.Subscribe(ctx, t.OffloadResult(), func(ctx context.Context, args bus.Args) {
		select {
		case results <- args:
		default:
		}
	})
	if err != nil {
		return "", 0, err
	}

	err = b.Publish(ctx, t.OffloadRequest(), req.Source, req.Operation, req.Code, req.ResourceName, req.Params)
	if err != nil {
		return "", 0, err
	}

	select {
	case args := <-results:
		duration, _ := args.Float(1)
		return args.String(0), duration, nil
	case <-time.After(wait):
		return "", 0, ErrNoResult
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
}

// SendFile publishes a file event carrying the content of path.
func SendFile(ctx context.Context, b bus.Bus, t bus.Topics, source, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return b.Publish(ctx, t.FileReceived(), source, filepath.Base(path), string(content))
}

// Progressive runs a progressive transfer, writing each notification to out.
func Progressive(ctx context.Context, b bus.Bus, t bus.Topics, n int, out io.Writer) (int, error) {
	res, err := b.Call(ctx, t.Progressive(), func(args bus.Args) {
		fmt.Fprintf(out, "progress: %s\n", args.String(0))
	}, n)
	if err != nil {
		return 0, err
	}
	return res.Int(0)
}

// Call invokes a promoted procedure: the reply is (output, duration, errors).
func Call(ctx context.Context, b bus.Bus, procedure, resourceName, input string) (string, float64, string, error) {
	res, err := b.Call(ctx, procedure, nil, resourceName, input)
	if err != nil {
		return "", 0, "", err
	}
	duration, _ := res.Float(1)
	return res.String(0), duration, res.String(2), nil
}

func offload(cmd *cobra.Command, args []string) {
	if operation == "" {
		fmt.Println("Missing operation name (-o)")
		os.Exit(1)
	}
	code := ""
	if codeFile != "" {
		raw, err := os.ReadFile(codeFile)
		if err != nil {
			fmt.Printf("Could not read %s: %v\n", codeFile, err)
			os.Exit(1)
		}
		code = string(raw)
	}

	c := dial()
	defer c.Close()
	output, duration, err := Offload(context.Background(), c, topics(), OffloadRequest{
		Source:       source,
		Operation:    operation,
		Code:         code,
		ResourceName: resourceName,
		Params:       params,
	}, timeout)
	if err != nil {
		fmt.Printf("Offloading failed: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("%s\n(took %f seconds)\n", output, duration)
}

func sendFile(cmd *cobra.Command, args []string) {
	if filePath == "" {
		fmt.Println("Missing file (-f)")
		os.Exit(1)
	}
	c := dial()
	defer c.Close()
	if err := SendFile(context.Background(), c, topics(), source, filePath); err != nil {
		fmt.Printf("Could not send file: %v\n", err)
		os.Exit(2)
	}
}

func progressive(cmd *cobra.Command, args []string) {
	c := dial()
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := Progressive(ctx, c, topics(), chunks, os.Stdout)
	if err != nil {
		fmt.Printf("Progressive transfer failed: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("transferred %d chunks\n", n)
}

func call(cmd *cobra.Command, args []string) {
	c := dial()
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	output, duration, errs, err := Call(ctx, c, args[0], resourceName, input)
	if err != nil {
		fmt.Printf("Call failed: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("%s\n(took %f seconds)\n", output, duration)
	if errs != "" {
		fmt.Printf("errors:\n%s\n", errs)
	}
}
