package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/grussorusso/offloadledge/internal/config"
	"github.com/grussorusso/offloadledge/utils"
)

// DockerEngine compiles and runs each unit inside a throwaway JDK container.
type DockerEngine struct {
	cli      *client.Client
	image    string
	memoryMB int64

	mutex     sync.Mutex
	refreshed bool
}

func NewDockerEngine(image string, memoryMB int64) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not connect to docker: %v", err)
	}
	return &DockerEngine{cli: cli, image: image, memoryMB: memoryMB}, nil
}

func (e *DockerEngine) Execute(ctx context.Context, task Task) (*Result, error) {
	source, err := readSource(task)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	e.ensureImage(ctx)

	cmd := append(containerScript(task.Location, MainClass(source, task.ClassID)), task.ResourceName, task.Params)
	resp, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image: e.image,
		Cmd:   cmd,
		Tty:   false,
	}, &container.HostConfig{Resources: container.Resources{Memory: e.memoryMB * 1048576}}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("could not create container: %v", err)
	}
	contID := resp.ID
	defer func() {
		// force set to true causes running container to be killed (and then removed)
		err := e.cli.ContainerRemove(context.Background(), contID, types.ContainerRemoveOptions{Force: true})
		if err != nil {
			log.Printf("Could not remove container %s: %v\n", contID, err)
		}
	}()

	var archive bytes.Buffer
	if err := utils.TarFile(task.Location, &archive); err != nil {
		return nil, err
	}
	if err := e.cli.CopyToContainer(ctx, contID, "/tmp", &archive, types.CopyToContainerOptions{}); err != nil {
		return nil, fmt.Errorf("could not copy unit to container: %v", err)
	}

	start := time.Now()
	if err := e.cli.ContainerStart(ctx, contID, types.ContainerStartOptions{}); err != nil {
		return nil, err
	}

	var status int64
	statusCh, errCh := e.cli.ContainerWait(ctx, contID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case s := <-statusCh:
		status = s.StatusCode
	}
	elapsed := time.Since(start)

	stdout, stderr, err := e.logs(ctx, contID)
	if err != nil {
		return nil, err
	}
	return containerResult(status, stdout, stderr, elapsed), nil
}

func (e *DockerEngine) logs(ctx context.Context, contID string) (string, string, error) {
	logsReader, err := e.cli.ContainerLogs(ctx, contID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("can't get the logs: %v", err)
	}
	defer logsReader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logsReader); err != nil {
		return "", "", fmt.Errorf("can't read the logs: %v", err)
	}
	return stdout.String(), stderr.String(), nil
}

func (e *DockerEngine) ensureImage(ctx context.Context) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.hasImage(ctx) {
		return
	}

	log.Printf("Pulling image: %s", e.image)
	pullResp, err := e.cli.ImagePull(ctx, e.image, types.ImagePullOptions{})
	if err != nil {
		log.Printf("Could not pull image: %s", e.image)
		// we do not return here, as a stale copy of the image
		// could still be available locally
		return
	}
	defer pullResp.Close()
	// This seems to be necessary to wait for the image to be pulled:
	io.Copy(io.Discard, pullResp)
	log.Printf("Pulled image: %s", e.image)
	e.refreshed = true
}

func (e *DockerEngine) hasImage(ctx context.Context) bool {
	list, err := e.cli.ImageList(ctx, types.ImageListOptions{Filters: filters.Args{}})
	if err != nil {
		log.Printf("image list error: %v\n", err)
		return false
	}
	for _, summary := range list {
		if len(summary.RepoTags) > 0 && strings.HasPrefix(summary.RepoTags[0], e.image) {
			// We have the image, but we may need to refresh it
			if config.GetBool(config.FACTORY_REFRESH_IMAGES, false) && !e.refreshed {
				return false
			}
			return true
		}
	}
	return false
}
