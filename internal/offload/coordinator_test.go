package offload

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/codecache"
	"github.com/grussorusso/offloadledge/internal/engine"
	"github.com/grussorusso/offloadledge/internal/platform"
	"github.com/grussorusso/offloadledge/internal/procedure"
	"github.com/grussorusso/offloadledge/internal/transformer"
	"github.com/grussorusso/offloadledge/utils"
)

// countingTransformer wraps the Java transformer and records its calls.
type countingTransformer struct {
	calls int32
	mu    sync.Mutex
	modes []transformer.Mode
}

func (c *countingTransformer) Transform(code, resourceName, params string, mode transformer.Mode) (string, string, error) {
	atomic.AddInt32(&c.calls, 1)
	c.mu.Lock()
	c.modes = append(c.modes, mode)
	c.mu.Unlock()
	return transformer.JavaTransformer{}.Transform(code, resourceName, params, mode)
}

func (c *countingTransformer) Calls() int {
	return int(atomic.LoadInt32(&c.calls))
}

type fakeEngine struct {
	mu     sync.Mutex
	tasks  []engine.Task
	result engine.Result
	err    error
}

func (f *fakeEngine) Execute(ctx context.Context, task engine.Task) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

func (f *fakeEngine) Tasks() []engine.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Task(nil), f.tasks...)
}

type harness struct {
	coordinator *Coordinator
	units       *codecache.Cache
	transformer *countingTransformer
	engine      *fakeEngine
	registry    *procedure.Registry
	bus         *bus.LocalBus

	mu        sync.Mutex
	published []bus.Args
}

func newHarness(t *testing.T) *harness {
	units, err := codecache.Open(codecache.Options{Dir: t.TempDir()})
	utils.AssertNil(t, err)
	t.Cleanup(func() { units.Close() })

	h := &harness{
		units:       units,
		transformer: &countingTransformer{},
		engine:      &fakeEngine{result: engine.Result{Success: true, Output: "42", Duration: 0.5}},
		bus:         bus.NewLocalBus(),
	}
	h.registry = procedure.NewRegistry(h.bus, nil)
	topics := bus.Topics{}
	h.coordinator = NewCoordinator(units, h.transformer, h.engine, h.registry, h.bus, topics)

	_, err = h.bus.Subscribe(context.Background(), topics.OffloadResult(), func(ctx context.Context, args bus.Args) {
		h.mu.Lock()
		h.published = append(h.published, args)
		h.mu.Unlock()
	})
	utils.AssertNil(t, err)
	return h
}

func (h *harness) Published() []bus.Args {
	h.bus.Drain()
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bus.Args(nil), h.published...)
}

const fooClass = "package p; class Foo { public static void main(String[] a) { System.out.print(42); } }"

func androidRequest(op, code string) Request {
	return Request{ID: "test", Source: platform.Android, Operation: op, Code: code, ResourceName: "run", Params: "{}"}
}

func TestClassFragmentIsTransformedStoredAndPublished(t *testing.T) {
	h := newHarness(t)

	res, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
	utils.AssertNil(t, err)
	utils.AssertTrue(t, res.Success)
	utils.AssertEquals(t, "Foo", res.ClassID)
	utils.AssertFalse(t, res.CacheHit)

	utils.AssertEquals(t, 1, h.transformer.Calls())
	utils.AssertEquals(t, transformer.ClassMode, h.transformer.modes[0])
	utils.AssertTrue(t, h.units.Exists("Foo"))

	tasks := h.engine.Tasks()
	utils.AssertEquals(t, 1, len(tasks))
	location, _ := h.units.LocationOf("Foo")
	utils.AssertEquals(t, engine.Task{ClassID: "Foo", Location: location, ResourceName: "run", Params: "{}"}, tasks[0])

	published := h.Published()
	utils.AssertEquals(t, 1, len(published))
	utils.AssertEquals(t, "42", published[0].String(0))
	d, _ := published[0].Float(1)
	utils.AssertEquals(t, 0.5, d)
}

func TestReplayHitsCache(t *testing.T) {
	h := newHarness(t)
	_, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
	utils.AssertNil(t, err)

	res, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
	utils.AssertNil(t, err)
	utils.AssertTrue(t, res.CacheHit)
	utils.AssertEquals(t, 1, h.transformer.Calls())
	utils.AssertEquals(t, 2, len(h.engine.Tasks()))
	utils.AssertEquals(t, "Foo", h.engine.Tasks()[1].ClassID)

	// cached operations do not need to carry the code again
	res, err = h.coordinator.HandleOffload(context.Background(), androidRequest("foo", ""))
	utils.AssertNil(t, err)
	utils.AssertTrue(t, res.CacheHit)
	utils.AssertEquals(t, 1, h.transformer.Calls())
}

func TestOperationNamedAfterStoredClassHitsCache(t *testing.T) {
	h := newHarness(t)
	_, err := h.units.Store("Compute", "public class Compute {}")
	utils.AssertNil(t, err)

	res, err := h.coordinator.HandleOffload(context.Background(), androidRequest("Compute", ""))
	utils.AssertNil(t, err)
	utils.AssertTrue(t, res.CacheHit)
	utils.AssertEquals(t, 0, h.transformer.Calls())
}

func TestSuccessfulOperationBecomesProcedure(t *testing.T) {
	h := newHarness(t)
	code := "int compute(int x) { return x * 2; }"
	res, err := h.coordinator.HandleOffload(context.Background(), androidRequest("compute", code))
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "Compute", res.ClassID)
	utils.AssertEquals(t, transformer.MethodMode, h.transformer.modes[0])
	utils.AssertTrue(t, h.bus.Registered("compute"))

	h.engine.mu.Lock()
	h.engine.result = engine.Result{Success: true, Output: "8", Duration: 0.1, Diagnostics: "warning"}
	h.engine.mu.Unlock()

	reply, err := h.bus.Call(context.Background(), "compute", nil, "res.txt", "4")
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "8", reply.String(0))
	d, _ := reply.Float(1)
	utils.AssertEquals(t, 0.1, d)
	utils.AssertEquals(t, "warning", reply.String(2))

	// the direct call did not go through the transformer
	utils.AssertEquals(t, 1, h.transformer.Calls())
	last := h.engine.Tasks()[1]
	utils.AssertEquals(t, "Compute", last.ClassID)
	utils.AssertEquals(t, "res.txt", last.ResourceName)
	utils.AssertEquals(t, "4", last.Params)

	utils.AssertEquals(t, 2, len(h.Published()))
}

func TestDirectCallReturnsDiagnosticsWithoutPublishing(t *testing.T) {
	h := newHarness(t)
	_, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
	utils.AssertNil(t, err)

	h.engine.mu.Lock()
	h.engine.result = engine.Result{Success: false, Diagnostics: "Exception in thread main"}
	h.engine.mu.Unlock()

	res, err := h.registry.Call(context.Background(), "foo", "run", "")
	utils.AssertNil(t, err)
	utils.AssertFalse(t, res.Success)
	utils.AssertEquals(t, "Exception in thread main", res.Diagnostics)
	utils.AssertEquals(t, 1, len(h.Published()))
}

func TestCompileFailureIsNotPublished(t *testing.T) {
	h := newHarness(t)
	h.engine.result = engine.Result{Success: false, Diagnostics: "Foo.java:1: error: ';' expected"}

	res, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
	utils.AssertNil(t, err)
	utils.AssertFalse(t, res.Success)
	utils.AssertEquals(t, 0, len(h.Published()))
	utils.AssertFalse(t, h.bus.Registered("foo"))
}

func TestEmptyOutputIsPublishedAsNothing(t *testing.T) {
	h := newHarness(t)
	h.engine.result = engine.Result{Success: true, Output: "", Duration: 0.2}

	res, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
	utils.AssertNil(t, err)
	utils.AssertEquals(t, EmptyOutput, res.Output)
	published := h.Published()
	utils.AssertEquals(t, 1, len(published))
	utils.AssertEquals(t, "nothing", published[0].String(0))
}

func TestNewlineOutputIsPublishedUnchanged(t *testing.T) {
	h := newHarness(t)
	h.engine.result = engine.Result{Success: true, Output: "\n", Duration: 0.2}

	res, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "\n", res.Output)
	published := h.Published()
	utils.AssertEquals(t, 1, len(published))
	utils.AssertEquals(t, "\n", published[0].String(0))
}

func TestNormalizeOutput(t *testing.T) {
	utils.AssertEquals(t, "nothing", NormalizeOutput(""))
	utils.AssertEquals(t, " ", NormalizeOutput(" "))
	utils.AssertEquals(t, "a\n\n", NormalizeOutput("a\n\n"))
	utils.AssertEquals(t, "nothing at all", NormalizeOutput("nothing at all"))
}

func TestUnrecognizedSourceIsNoop(t *testing.T) {
	h := newHarness(t)
	req := androidRequest("foo", fooClass)
	req.Source = platform.Unrecognized

	res, err := h.coordinator.HandleOffload(context.Background(), req)
	utils.AssertTrue(t, errors.Is(err, ErrUnrecognizedSource))
	utils.AssertTrue(t, res == nil)
	utils.AssertEquals(t, 0, h.transformer.Calls())
	utils.AssertEquals(t, 0, len(h.engine.Tasks()))
	utils.AssertEquals(t, 0, len(h.Published()))
	utils.AssertEquals(t, 0, len(h.registry.Names()))

	entries, err := os.ReadDir(h.units.Dir())
	utils.AssertNil(t, err)
	utils.AssertEquals(t, 0, len(entries))
}

func TestIOSIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	req := androidRequest("foo", fooClass)
	req.Source = platform.IOS

	res, err := h.coordinator.HandleOffload(context.Background(), req)
	utils.AssertNil(t, err)
	utils.AssertTrue(t, res == nil)
	utils.AssertEquals(t, 0, len(h.engine.Tasks()))
	utils.AssertEquals(t, 0, len(h.Published()))
}

func TestTransformationFailure(t *testing.T) {
	h := newHarness(t)
	_, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", "package p; interface Foo {}"))
	utils.AssertTrue(t, errors.Is(err, ErrTransformation))
	utils.AssertEquals(t, 0, len(h.engine.Tasks()))
	utils.AssertEquals(t, 0, len(h.Published()))
}

func TestEngineInfrastructureFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.err = errors.New("docker unreachable")
	_, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
	utils.AssertNonNil(t, err)
	utils.AssertEquals(t, 0, len(h.Published()))
}

func TestConcurrentFirstOffloadsRegisterOnce(t *testing.T) {
	h := newHarness(t)
	const clients = 20
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.coordinator.HandleOffload(context.Background(), androidRequest("foo", fooClass))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		utils.AssertNil(t, err)
	}

	utils.AssertEquals(t, clients, len(h.Published()))
	utils.AssertSliceEquals(t, []string{"foo"}, h.registry.Names())
	utils.AssertTrue(t, h.units.Exists("Foo"))
}

func TestOffloadHandlerDecodesEvent(t *testing.T) {
	h := newHarness(t)
	_, err := h.bus.Subscribe(context.Background(), "offloading.request", h.coordinator.OffloadHandler())
	utils.AssertNil(t, err)

	utils.AssertNil(t, h.bus.Publish(context.Background(), "offloading.request", "Android", "foo", fooClass, "run", "{}"))
	utils.AssertEquals(t, 1, len(h.Published()))

	// a malformed event is contained by its handler
	utils.AssertNil(t, h.bus.Publish(context.Background(), "offloading.request", "Android"))
	utils.AssertEquals(t, 1, len(h.Published()))
}

func TestRequestFromArgs(t *testing.T) {
	req := RequestFromArgs(bus.Args{"Android", "op", "code", nil})
	utils.AssertEquals(t, platform.Android, req.Source)
	utils.AssertEquals(t, "op", req.Operation)
	utils.AssertEquals(t, "code", req.Code)
	utils.AssertEquals(t, "", req.ResourceName)
	utils.AssertEquals(t, "", req.Params)
	utils.AssertTrue(t, req.ID != "")
}
