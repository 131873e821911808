// Package engine compiles class units and runs them, capturing their output.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/grussorusso/offloadledge/internal/config"
)

// Task identifies one execution request.
type Task struct {
	ClassID      string
	Location     string // path of the source unit
	ResourceName string
	Params       string
}

// Result is what a run produced. A compile or runtime failure is reported
// with Success=false and the diagnostics; it is not an error.
type Result struct {
	Success     bool
	Output      string
	Duration    float64 // seconds
	Diagnostics string
}

// Engine compiles and runs a class unit. The returned error is reserved for
// infrastructure failures (missing toolchain, unreachable container runtime).
type Engine interface {
	Execute(ctx context.Context, task Task) (*Result, error)
}

const (
	ProcessKind = "process"
	DockerKind  = "docker"
	PodmanKind  = "podman"
)

const DefaultImage = "eclipse-temurin:17-jdk"

// exit code used by the in-container script when javac fails
const compileFailureExitCode = 97

var packageDecl = regexp.MustCompile(`(?m)^\s*package\s+([A-Za-z_$][\w$.]*)\s*;`)

// MainClass returns the fully qualified name of the class to launch.
func MainClass(source, classID string) string {
	m := packageDecl.FindStringSubmatch(source)
	if m == nil {
		return classID
	}
	return m[1] + "." + classID
}

// FromConfig builds the engine selected by the configuration.
func FromConfig() (Engine, error) {
	kind := config.GetString(config.ENGINE_KIND, ProcessKind)
	switch kind {
	case ProcessKind:
		return NewProcessEngine(
			config.GetString(config.ENGINE_JAVAC, "javac"),
			config.GetString(config.ENGINE_JAVA, "java")), nil
	case DockerKind:
		return NewDockerEngine(config.GetString(config.ENGINE_IMAGE, DefaultImage),
			int64(config.GetInt(config.ENGINE_MEMORY_MB, 512)))
	case PodmanKind:
		// Podman requires the prefix 'docker.io' in order to pull from DockerHub
		return NewPodmanEngine(config.GetString(config.ENGINE_IMAGE, "docker.io/library/"+DefaultImage))
	default:
		return nil, fmt.Errorf("unknown engine kind: %s", kind)
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if secs := config.GetInt(config.ENGINE_TIMEOUT, 0); secs > 0 {
		return context.WithTimeout(ctx, time.Duration(secs)*time.Second)
	}
	return context.WithCancel(ctx)
}

func readSource(task Task) (string, error) {
	src, err := os.ReadFile(task.Location)
	if err != nil {
		return "", fmt.Errorf("could not read unit %s: %w", task.ClassID, err)
	}
	return string(src), nil
}

// containerScript compiles and runs the unit copied under /tmp.
// Resource name and parameters are passed as $0 and $1.
func containerScript(location, mainClass string) []string {
	script := fmt.Sprintf("cd /tmp && javac -d build %s || exit %d; exec java -cp build %s \"$0\" \"$1\"",
		filepath.Base(location), compileFailureExitCode, mainClass)
	return []string{"sh", "-c", script}
}

// containerResult maps the exit status of containerScript to a Result.
func containerResult(status int64, stdout, stderr string, elapsed time.Duration) *Result {
	res := &Result{
		Output:      stdout,
		Duration:    elapsed.Seconds(),
		Diagnostics: stderr,
		Success:     status == 0,
	}
	if status == compileFailureExitCode {
		res.Output = ""
		res.Diagnostics = stdout + stderr
	}
	return res
}
