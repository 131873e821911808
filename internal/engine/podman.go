package engine

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/containers/podman/v4/libpod/define"
	"github.com/containers/podman/v4/pkg/bindings"
	"github.com/containers/podman/v4/pkg/bindings/containers"
	"github.com/containers/podman/v4/pkg/bindings/images"
	"github.com/containers/podman/v4/pkg/specgen"
	"github.com/grussorusso/offloadledge/internal/config"
)

const defaultPodmanSocket = "unix:///run/podman/podman.sock"

// PodmanEngine is the rootless alternative to DockerEngine.
type PodmanEngine struct {
	conn  context.Context
	image string

	mutex   sync.Mutex
	checked bool
}

func NewPodmanEngine(image string) (*PodmanEngine, error) {
	conn, err := bindings.NewConnection(context.Background(), config.GetString(config.PODMAN_SOCKET, defaultPodmanSocket))
	if err != nil {
		return nil, fmt.Errorf("could not connect to podman: %v", err)
	}
	return &PodmanEngine{conn: conn, image: image}, nil
}

func (e *PodmanEngine) Execute(ctx context.Context, task Task) (*Result, error) {
	source, err := readSource(task)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	e.ensureImage()

	s := specgen.NewSpecGenerator(e.image, false)
	s.Command = append(containerScript(task.Location, MainClass(source, task.ClassID)), task.ResourceName, task.Params)
	s.Terminal = false
	r, err := containers.CreateWithSpec(e.conn, s, new(containers.CreateOptions))
	if err != nil {
		return nil, fmt.Errorf("could not create container: %v", err)
	}
	contID := r.ID
	defer func() {
		_, err := containers.Remove(e.conn, contID, new(containers.RemoveOptions).WithForce(true))
		if err != nil {
			log.Printf("Could not remove container %s: %v\n", contID, err)
		}
	}()

	// Podman API doesn't support container files copy: copy by shell
	dest := contID + ":/tmp/" + filepath.Base(task.Location)
	if out, err := exec.CommandContext(ctx, "podman", "cp", task.Location, dest).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("could not copy unit to container: %v: %s", err, out)
	}

	start := time.Now()
	if err := containers.Start(e.conn, contID, nil); err != nil {
		log.Printf("The container %s could not be started: %v", contID, err)
		return nil, err
	}

	waitDone := make(chan struct{})
	var status int32
	var waitErr error
	go func() {
		defer close(waitDone)
		exited := define.ContainerStateExited
		status, waitErr = containers.Wait(e.conn, contID, new(containers.WaitOptions).WithCondition([]define.ContainerStatus{exited}))
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-waitDone:
	}
	if waitErr != nil {
		return nil, waitErr
	}
	elapsed := time.Since(start)

	stdout, stderr, err := e.logs(contID)
	if err != nil {
		return nil, err
	}
	return containerResult(int64(status), stdout, stderr, elapsed), nil
}

func (e *PodmanEngine) logs(contID string) (string, string, error) {
	stdoutCh := make(chan string)
	stderrCh := make(chan string)
	var stdout, stderr strings.Builder

	var wg sync.WaitGroup
	collect := func(ch <-chan string, b *strings.Builder) {
		defer wg.Done()
		for line := range ch {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	wg.Add(2)
	go collect(stdoutCh, &stdout)
	go collect(stderrCh, &stderr)

	opts := new(containers.LogOptions).WithStdout(true).WithStderr(true)
	err := containers.Logs(e.conn, contID, opts, stdoutCh, stderrCh)
	close(stdoutCh)
	close(stderrCh)
	wg.Wait()
	if err != nil {
		return "", "", fmt.Errorf("can't get the logs: %v", err)
	}
	return stdout.String(), stderr.String(), nil
}

func (e *PodmanEngine) ensureImage() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.checked {
		return
	}

	exists, err := images.Exists(e.conn, e.image, nil)
	if err == nil && exists && !config.GetBool(config.FACTORY_REFRESH_IMAGES, false) {
		e.checked = true
		return
	}
	log.Printf("Pulling image: %s", e.image)
	if _, err := images.Pull(e.conn, e.image, new(images.PullOptions)); err != nil {
		log.Printf("Could not pull image: %s", e.image)
		// a stale copy of the image could still be available locally
		return
	}
	e.checked = true
}
