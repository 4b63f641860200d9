// Package execution runs call strings end to end: parse, resolve, invoke,
// then record the call in the background.
package execution

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/calld/internal/callexpr"
	"github.com/ent0n29/calld/internal/calllog"
	"github.com/ent0n29/calld/internal/modules"
	"github.com/ent0n29/calld/internal/observability"
)

const defaultPersistTimeout = 10 * time.Second

// Envelope is the uniform result of Execute. Exactly one of the success or
// error keys is present when it is encoded.
type Envelope struct {
	Success any
	Error   string
	Kind    Kind
}

func (e Envelope) Failed() bool { return e.Kind != KindNone }

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Error})
	}
	return json.Marshal(struct {
		Success any `json:"success"`
	}{calllog.Normalize(e.Success)})
}

func failure(err error) Envelope {
	return Envelope{Error: err.Error(), Kind: Classify(err)}
}

// Recorder is the part of the call store the dispatcher writes to.
type Recorder interface {
	Save(ctx context.Context, callString string, result any) (int64, error)
}

type Dispatcher struct {
	registry *modules.Registry
	recorder Recorder
	logger   *slog.Logger
	metrics  *observability.Metrics

	persistTimeout time.Duration
	pending        sync.WaitGroup
}

// NewDispatcher builds a dispatcher. recorder may be nil, in which case
// nothing is persisted.
func NewDispatcher(registry *modules.Registry, recorder Recorder, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:       registry,
		recorder:       recorder,
		logger:         logger,
		metrics:        metrics,
		persistTimeout: defaultPersistTimeout,
	}
}

// Execute never returns an error: every failure is folded into the envelope.
// A successful call is persisted asynchronously and a failed save does not
// change the envelope.
func (d *Dispatcher) Execute(ctx context.Context, callString string) Envelope {
	start := time.Now()

	call, err := callexpr.Parse(callString)
	if err != nil {
		d.finish(callString, "", start, err)
		return failure(err)
	}

	// Only resolved modules become metric labels; requested names are
	// client input.
	m, err := d.registry.Resolve(ctx, call.Module)
	if err != nil {
		d.finish(callString, "", start, err)
		return failure(err)
	}
	if _, ok := m.Lookup(call.Function); !ok {
		err := &modules.FunctionNotFoundError{Module: m.Name, Function: call.Function}
		d.finish(callString, m.Name, start, err)
		return failure(err)
	}

	result, err := d.registry.Invoke(ctx, m, call.Function, call.Args())
	if err != nil {
		err = invocationError(call, err)
		d.finish(callString, m.Name, start, err)
		return failure(err)
	}
	d.finish(callString, m.Name, start, nil)

	d.persist(ctx, callString, result)
	return Envelope{Success: result}
}

func (d *Dispatcher) finish(callString, module string, start time.Time, err error) {
	kind := Classify(err)
	outcome := string(kind)
	if kind == KindNone {
		outcome = "success"
	} else {
		d.logger.Debug("call failed", "call_string", callString, "kind", outcome, "error", err)
	}
	d.metrics.ObserveCall(module, outcome, time.Since(start))
}

func (d *Dispatcher) persist(ctx context.Context, callString string, result any) {
	if d.recorder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, d.persistTimeout)
		defer cancel()
		if _, err := d.recorder.Save(ctx, callString, result); err != nil {
			d.metrics.IncPersistError()
			d.logger.Error("failed to persist call", "call_string", callString, "error", err)
		}
	}()
}

// Wait blocks until every in-flight save has finished.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}
