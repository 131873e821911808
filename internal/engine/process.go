package engine

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
)

// ProcessEngine runs javac and java as local processes.
type ProcessEngine struct {
	javac string
	java  string
	// per-class compile locks
	locks *hashmap.Map[string, *sync.Mutex]
}

func NewProcessEngine(javac, java string) *ProcessEngine {
	return &ProcessEngine{javac: javac, java: java, locks: hashmap.New[string, *sync.Mutex]()}
}

func (e *ProcessEngine) Execute(ctx context.Context, task Task) (*Result, error) {
	source, err := readSource(task)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	buildDir := filepath.Join(filepath.Dir(task.Location), "build")
	mainClass := MainClass(source, task.ClassID)

	diagnostics, err := e.compile(ctx, task, buildDir, mainClass)
	if err != nil {
		return nil, err
	}
	if diagnostics != "" {
		return &Result{Success: false, Diagnostics: diagnostics}, nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.java, "-cp", buildDir, mainClass, task.ResourceName, task.Params)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	res := &Result{
		Success:     err == nil,
		Output:      stdout.String(),
		Duration:    elapsed.Seconds(),
		Diagnostics: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		log.Printf("%s exited with %d\n", mainClass, exitErr.ExitCode())
	}
	return res, nil
}

// compile builds the unit unless an up-to-date class file exists. It returns
// the compiler diagnostics when compilation fails.
func (e *ProcessEngine) compile(ctx context.Context, task Task, buildDir, mainClass string) (string, error) {
	lock := e.lockFor(task.ClassID)
	lock.Lock()
	defer lock.Unlock()

	classFile := filepath.Join(buildDir, strings.ReplaceAll(mainClass, ".", string(filepath.Separator))+".class")
	if upToDate(classFile, task.Location) {
		return "", nil
	}

	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, e.javac, "-d", buildDir, task.Location).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", err
		}
		log.Printf("Compilation of %s failed\n", task.ClassID)
		if len(out) == 0 {
			return err.Error(), nil
		}
		return string(out), nil
	}
	return "", nil
}

func (e *ProcessEngine) lockFor(classID string) *sync.Mutex {
	lock := &sync.Mutex{}
	if e.locks.Insert(classID, lock) {
		return lock
	}
	if existing, ok := e.locks.Get(classID); ok {
		return existing
	}
	return lock
}

func upToDate(classFile, source string) bool {
	cinfo, err := os.Stat(classFile)
	if err != nil {
		return false
	}
	sinfo, err := os.Stat(source)
	if err != nil {
		return false
	}
	return !cinfo.ModTime().Before(sinfo.ModTime())
}
