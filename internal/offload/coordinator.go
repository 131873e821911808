// Package offload drives an offload request through the class unit cache,
// the transformer and the execution engine, then publishes the result and
// promotes the operation to a directly callable procedure.
package offload

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/engine"
	"github.com/grussorusso/offloadledge/internal/metrics"
	"github.com/grussorusso/offloadledge/internal/platform"
	"github.com/grussorusso/offloadledge/internal/procedure"
	"github.com/grussorusso/offloadledge/internal/telemetry"
	"github.com/grussorusso/offloadledge/internal/transformer"
)

var ErrUnrecognizedSource = errors.New("unrecognized source")
var ErrTransformation = errors.New("transformation failed")

// UnitStore is the part of the class unit cache the coordinator needs.
type UnitStore interface {
	Resolve(operation string) (string, bool)
	Exists(classID string) bool
	LocationOf(classID string) (string, error)
	Store(classID string, content string) (string, error)
	Alias(operation, classID string) error
}

type Coordinator struct {
	units       UnitStore
	transformer transformer.Transformer
	engine      engine.Engine
	registry    *procedure.Registry
	publisher   bus.Publisher
	topics      bus.Topics
}

func NewCoordinator(units UnitStore, t transformer.Transformer, e engine.Engine,
	registry *procedure.Registry, publisher bus.Publisher, topics bus.Topics) *Coordinator {
	return &Coordinator{
		units:       units,
		transformer: t,
		engine:      e,
		registry:    registry,
		publisher:   publisher,
		topics:      topics,
	}
}

// classOf returns the class identifier an operation maps to.
func (c *Coordinator) classOf(operation string) string {
	if classID, ok := c.units.Resolve(operation); ok {
		return classID
	}
	return operation
}

// HandleOffload serves one offload request. Requests from iOS are acknowledged
// with a nil result. A failed execution is returned with Success=false and is
// not published; the error is reserved for rejected requests and for
// transformation and infrastructure failures.
func (c *Coordinator) HandleOffload(ctx context.Context, req Request) (res *ExecutionResult, err error) {
	log.Printf("[%s] Offload of %s from %s\n", req.ID, req.Operation, req.Source)

	ctx, span := telemetry.Tracer().Start(ctx, "offload")
	span.SetAttributes(
		attribute.String("offload.request", req.ID),
		attribute.String("offload.operation", req.Operation),
		attribute.String("offload.source", req.Source.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if res != nil {
			span.SetAttributes(
				attribute.String("offload.class", res.ClassID),
				attribute.Bool("offload.cache_hit", res.CacheHit),
				attribute.Bool("offload.success", res.Success))
		}
		span.End()
	}()

	switch req.Source {
	case platform.Android:
	case platform.IOS:
		log.Printf("[%s] Received from iOS app\n", req.ID)
		metrics.AddOffload(req.Source.String(), metrics.Acknowledged)
		return nil, nil
	default:
		log.Printf("[%s] Unrecognized source!\n", req.ID)
		metrics.AddOffload(req.Source.String(), metrics.Rejected)
		return nil, ErrUnrecognizedSource
	}

	classID, location, hit, err := c.materialize(req)
	if err != nil {
		metrics.AddOffload(req.Source.String(), metrics.Failed)
		return nil, err
	}

	out, err := c.engine.Execute(ctx, engine.Task{
		ClassID:      classID,
		Location:     location,
		ResourceName: req.ResourceName,
		Params:       req.Params,
	})
	if err != nil {
		metrics.AddOffload(req.Source.String(), metrics.Failed)
		return nil, fmt.Errorf("could not execute %s: %w", classID, err)
	}

	result := &ExecutionResult{
		ClassID:     classID,
		Success:     out.Success,
		Duration:    out.Duration,
		Diagnostics: out.Diagnostics,
		CacheHit:    hit,
	}
	if !out.Success {
		log.Printf("[%s] Execution of %s failed:\n%s\n", req.ID, classID, out.Diagnostics)
		metrics.AddOffload(req.Source.String(), metrics.Failed)
		return result, nil
	}

	result.Output = NormalizeOutput(out.Output)
	metrics.ObserveExecution(out.Duration)
	c.publish(ctx, req.ID, result.Output, result.Duration)
	metrics.AddOffload(req.Source.String(), metrics.Published)

	c.promote(ctx, req, classID)
	return result, nil
}

// materialize finds the class unit for the request, transforming and storing
// the raw code on a cache miss.
func (c *Coordinator) materialize(req Request) (classID, location string, hit bool, err error) {
	classID = c.classOf(req.Operation)
	if c.units.Exists(classID) {
		location, err = c.units.LocationOf(classID)
		if err == nil {
			log.Printf("[%s] Class %s found in cache\n", req.ID, classID)
			metrics.AddCacheLookup(true)
			return classID, location, true, nil
		}
	}
	metrics.AddCacheLookup(false)

	mode := transformer.Classify(req.Code)
	unit, classID, err := c.transformer.Transform(req.Code, req.ResourceName, req.Params, mode)
	if err != nil {
		log.Printf("[%s] Could not transform (%s mode) code:\n%s\n", req.ID, mode, req.Code)
		return "", "", false, fmt.Errorf("%w: %v", ErrTransformation, err)
	}
	log.Printf("[%s] Class name returned from transformer: %s\n", req.ID, classID)

	location, err = c.units.Store(classID, unit)
	if err != nil {
		return "", "", false, fmt.Errorf("could not store class %s: %w", classID, err)
	}
	if classID != req.Operation && strings.TrimSpace(req.Operation) != "" {
		if err := c.units.Alias(req.Operation, classID); err != nil {
			log.Printf("[%s] Could not alias %s to %s: %v\n", req.ID, req.Operation, classID, err)
		}
	}
	return classID, location, false, nil
}

func (c *Coordinator) publish(ctx context.Context, reqID, output string, duration float64) {
	log.Printf("[%s] Publishing result: %s that took %f seconds\n", reqID, output, duration)
	if err := c.publisher.Publish(ctx, c.topics.OffloadResult(), output, duration); err != nil {
		log.Printf("[%s] Could not publish result: %v\n", reqID, err)
	}
}

// promote registers the operation as a procedure. Conflicts are expected
// and only logged.
func (c *Coordinator) promote(ctx context.Context, req Request, classID string) {
	if req.Operation == "" {
		return
	}
	_, err := c.registry.Register(ctx, req.Operation, classID, c.Invoker(classID))
	switch {
	case err == nil:
		metrics.AddRegistration("registered")
	case errors.Is(err, procedure.ErrAlreadyRegistered):
		log.Printf("[%s] Could not register procedure: %v\n", req.ID, err)
		metrics.AddRegistration("conflict")
	default:
		log.Printf("[%s] Could not register procedure: %v\n", req.ID, err)
		metrics.AddRegistration("failed")
	}
}

// Invoker returns the direct entry point of a promoted class: it runs the
// cached unit, publishes successful results like the event path does, and
// hands the diagnostics back to the caller.
func (c *Coordinator) Invoker(classID string) procedure.Invoker {
	return func(ctx context.Context, resourceName, input string) (*engine.Result, error) {
		reqID := "direct:" + classID
		log.Printf("[%s] Execute %s %s %s\n", reqID, classID, resourceName, input)
		metrics.AddProcedureCall(classID)

		location, err := c.units.LocationOf(classID)
		if err != nil {
			return nil, err
		}
		res, err := c.engine.Execute(ctx, engine.Task{
			ClassID:      classID,
			Location:     location,
			ResourceName: resourceName,
			Params:       input,
		})
		if err != nil {
			return nil, err
		}
		reply := *res
		reply.Output = NormalizeOutput(res.Output)
		if res.Success {
			c.publish(ctx, reqID, reply.Output, reply.Duration)
		}
		return &reply, nil
	}
}

// OffloadHandler consumes offload events from the bus. Failures stay within
// the handler.
func (c *Coordinator) OffloadHandler() bus.EventHandler {
	return func(ctx context.Context, args bus.Args) {
		req := RequestFromArgs(args)
		if _, err := c.HandleOffload(ctx, req); err != nil {
			log.Printf("[%s] Offload of %s dropped: %v\n", req.ID, req.Operation, err)
		}
	}
}
