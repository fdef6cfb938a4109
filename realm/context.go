package realm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/jsrealm/internal/logging"
	"github.com/GriffinCanCode/jsrealm/internal/shared/id"
	"github.com/GriffinCanCode/jsrealm/realm/boundary"
	"github.com/GriffinCanCode/jsrealm/realm/intrinsics"
	"github.com/GriffinCanCode/jsrealm/realm/scope"
	"github.com/GriffinCanCode/jsrealm/realm/transform"
)

var (
	// ErrNoParent is returned when a nested context is requested without
	// an enclosing context.
	ErrNoParent = errors.New("realm: nested context requires a parent")
)

// Context is a sandbox: a global object of its own, evaluated against
// through the scope interposer. Root contexts own their intrinsics;
// nested contexts share them with their root.
type Context struct {
	id      id.ContextID
	kind    Kind
	set     *intrinsics.Set
	global  *goja.Object
	shims   []string
	cfg     Config
	eval    *evaluator
	bound   *boundary.Boundary
	log     *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
}

// Create makes a context of the given kind. A root context with a nil
// parent gets no inherited shims; a nested context needs a parent.
func Create(parent *Context, kind Kind, cfg Config) (*Context, error) {
	return CreateContext(context.Background(), parent, kind, cfg)
}

// CreateContext is Create with a context bounding intrinsics acquisition
// for root contexts.
func CreateContext(ctx context.Context, parent *Context, kind Kind, cfg Config) (*Context, error) {
	switch kind {
	case KindRoot:
		if parent == nil {
			return NewRootContext(ctx, cfg)
		}
		return parent.NewRootContext(ctx, cfg)
	case KindNested:
		if parent == nil {
			return nil, ErrNoParent
		}
		return parent.NewNested(cfg)
	default:
		return nil, fmt.Errorf("unknown context kind %s", kind)
	}
}

// NewRoot creates a root context with fresh intrinsics.
func NewRoot(cfg Config) (*Context, error) {
	return NewRootContext(context.Background(), cfg)
}

// NewRootContext is NewRoot with a context bounding intrinsics
// acquisition.
func NewRootContext(ctx context.Context, cfg Config) (*Context, error) {
	return newRoot(ctx, cfg, nil)
}

// NewRoot creates a root context whose shims are this context's root
// shims followed by cfg.Shims. Logger and metrics default to this
// context's.
func (c *Context) NewRoot(cfg Config) (*Context, error) {
	return c.NewRootContext(context.Background(), cfg)
}

// NewRootContext is NewRoot with a context bounding intrinsics
// acquisition.
func (c *Context) NewRootContext(ctx context.Context, cfg Config) (*Context, error) {
	return newRoot(ctx, c.inherit(cfg), c.shims)
}

// NewNested creates a context sharing this context's intrinsics with a
// global of its own. Shims are not run.
func (c *Context) NewNested(cfg Config) (*Context, error) {
	cfg = c.inherit(cfg)
	n := newContext(KindNested, c.set, c.shims, cfg)

	c.set.Lock()
	defer c.set.Unlock()

	if err := n.setupGlobal(); err != nil {
		return nil, err
	}
	if !cfg.ConfigurableGlobals {
		if err := n.freeze(); err != nil {
			return nil, err
		}
	}

	n.metrics.RecordContext(KindNested.String())
	n.log.Debug("nested context created", zap.String("parent", c.id.String()))
	return n, nil
}

func (c *Context) inherit(cfg Config) Config {
	if cfg.Logger == nil {
		cfg.Logger = c.cfg.Logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = c.metrics
	}
	if cfg.Tracer == nil {
		cfg.Tracer = c.tracer
	}
	return cfg
}

func newRoot(ctx context.Context, cfg Config, inherited []string) (*Context, error) {
	log := logging.OrNop(cfg.Logger)
	source := cfg.Source
	if source == nil {
		source = intrinsics.Fresh{Logger: log}
	}

	set, err := source.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire intrinsics: %w", err)
	}

	shims := make([]string, 0, len(inherited)+len(cfg.Shims))
	shims = append(shims, inherited...)
	shims = append(shims, cfg.Shims...)
	c := newContext(KindRoot, set, shims, cfg)

	set.Lock()
	defer set.Unlock()

	if err := c.setupGlobal(); err != nil {
		return nil, err
	}
	for i, shim := range shims {
		_, err := c.bound.Capture(func() (goja.Value, error) {
			return c.eval.evaluate(shim, nil, nil, nil)
		})
		if err != nil {
			return nil, fmt.Errorf("shim %d: %w", i, err)
		}
	}
	if !cfg.ConfigurableGlobals {
		if err := c.freeze(); err != nil {
			return nil, err
		}
	}

	c.metrics.RecordContext(KindRoot.String())
	c.log.Debug("root context created",
		zap.String("realm", set.ID().String()),
		zap.Int("shims", len(shims)))
	return c, nil
}

func newContext(kind Kind, set *intrinsics.Set, shims []string, cfg Config) *Context {
	cid := id.NewContextID()
	log := logging.ForContext(cfg.Logger, cid.String(), kind.String())
	global := set.Runtime().CreateObject(set.ObjectPrototype())
	bound := boundary.New(set)
	return &Context{
		id:      cid,
		kind:    kind,
		set:     set,
		global:  global,
		shims:   shims,
		cfg:     cfg,
		eval:    newEvaluator(set, global, cfg, bound, log, cfg.Metrics),
		bound:   bound,
		log:     log,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
}

// setupGlobal installs the shared globals and the confined eval, Function
// and Realm facade. Frozen values are final immediately; everything else
// stays writable until freeze.
func (c *Context) setupGlobal() error {
	for _, g := range c.set.Globals() {
		flag := goja.FLAG_TRUE
		if g.Stability == intrinsics.Frozen {
			flag = goja.FLAG_FALSE
		}
		if err := c.global.DefineDataProperty(g.Name, g.Value, flag, flag, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("install global %s: %w", g.Name, err)
		}
	}

	own := []struct {
		name  string
		value goja.Value
	}{
		{"globalThis", c.global},
		{"eval", c.confinedEval()},
		{"Function", c.confinedFunction()},
		{"Realm", c.facade()},
	}
	for _, p := range own {
		if err := c.global.DefineDataProperty(p.name, p.value, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("install global %s: %w", p.name, err)
		}
	}
	return nil
}

// freeze makes the stable globals non-writable and non-configurable with
// whatever value they hold now. Globals removed by a shim stay removed.
func (c *Context) freeze() error {
	for _, g := range c.set.Globals() {
		if g.Stability != intrinsics.Stable {
			continue
		}
		v := c.global.Get(g.Name)
		if v == nil {
			continue
		}
		if err := c.global.DefineDataProperty(g.Name, v, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("freeze global %s: %w", g.Name, err)
		}
	}
	c.eval.invalidate()
	return nil
}

// confinedEval is the eval installed on the sandbox global. Calling it is
// always an indirect eval of the sandbox: the source sees the global and
// no local scope.
func (c *Context) confinedEval() goja.Value {
	fn := c.bound.Func(func(call goja.FunctionCall) goja.Value {
		src := call.Argument(0)
		if !goja.IsString(src) {
			return src
		}
		v, err := c.eval.evaluate(src.String(), nil, nil, nil)
		if err != nil {
			panic(err)
		}
		return v
	})
	c.setName(fn, "eval", 1)
	return fn
}

// confinedFunction is the Function constructor installed on the sandbox
// global. It only builds source text; the evaluator does the rest.
func (c *Context) confinedFunction() goja.Value {
	fn := c.bound.Constructor(func(args []goja.Value) *goja.Object {
		var params []string
		body := ""
		if n := len(args); n > 0 {
			for _, a := range args[:n-1] {
				params = append(params, a.String())
			}
			body = args[n-1].String()
		}
		src, err := BuildSource(params, body)
		if err != nil {
			panic(err)
		}
		v, err := c.eval.evaluate(src, nil, nil, nil)
		if err != nil {
			panic(err)
		}
		obj, ok := v.(*goja.Object)
		if !ok {
			panic(fmt.Errorf("function source did not produce a function"))
		}
		return obj
	})
	c.setName(fn, "Function", 1)
	if obj, ok := fn.(*goja.Object); ok {
		if proto := c.set.Function().Get("prototype"); proto != nil {
			_ = obj.DefineDataProperty("prototype", proto, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
		}
	}
	return fn
}

func (c *Context) setName(fn goja.Value, name string, length int) {
	obj, ok := fn.(*goja.Object)
	if !ok {
		return
	}
	rt := c.set.Runtime()
	_ = obj.DefineDataProperty("name", rt.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	_ = obj.DefineDataProperty("length", rt.ToValue(length), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// ID returns the context identifier used in logs.
func (c *Context) ID() id.ContextID { return c.id }

// Kind returns whether the context is a root or a nested context.
func (c *Context) Kind() Kind { return c.kind }

// Global returns the sandbox global object.
func (c *Context) Global() *goja.Object { return c.global }

// Runtime returns the goja runtime the context lives in. Callers touching
// it directly must not race with Evaluate.
func (c *Context) Runtime() *goja.Runtime { return c.set.Runtime() }

// Intrinsics returns the intrinsics set shared by the root and its nested
// contexts.
func (c *Context) Intrinsics() *intrinsics.Set { return c.set }

// Shims returns the shim sources a root created from this context
// inherits.
func (c *Context) Shims() []string {
	return append([]string(nil), c.shims...)
}

// Endow converts plain Go values into read-only endowments. Go functions
// are wrapped so that their errors and panics reach confined code as
// confined exceptions.
func (c *Context) Endow(values map[string]any) scope.Endowments {
	c.set.Lock()
	defer c.set.Unlock()

	out := scope.Values(c.set.Runtime(), values)
	for name, b := range out {
		b.Value = c.bound.Wrap(b.Value)
		out[name] = b
	}
	return out
}

// Evaluate runs src in the sandbox with endowments layered above the
// global and returns its completion value. Confined exceptions are
// returned as *boundary.Error, fatal violations as boundary.Violation.
func (c *Context) Evaluate(src string, endowments scope.Endowments, opts ...EvalOption) (goja.Value, error) {
	return c.EvaluateContext(context.Background(), src, endowments, opts...)
}

// EvaluateContext is Evaluate with cancellation: when ctx is done the
// runtime is interrupted and a *goja.InterruptedError is returned.
func (c *Context) EvaluateContext(ctx context.Context, src string, endowments scope.Endowments, opts ...EvalOption) (goja.Value, error) {
	var o evalOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.set.Lock()
	defer c.set.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := c.watch(ctx)
	defer stop()

	span, spanCtx := c.tracer.StartSpan(ctx, "evaluate")
	span.SetTag("context", c.id.String())
	span.SetTag("kind", c.kind.String())
	defer span.Finish()

	timer := monitoring.NewTimer(c.metrics, c.kind.String())
	var raw error
	v, err := c.bound.Capture(func() (goja.Value, error) {
		v, err := c.eval.evaluate(src, endowments, o.transforms, span)
		raw = err
		return v, err
	})

	outcome := monitoring.OutcomeOK
	var violation boundary.Violation
	var rejected *transform.RejectedSourceError
	switch {
	case err == nil:
	case errors.As(err, &violation):
		outcome = monitoring.OutcomeViolation
	case errors.As(raw, &rejected):
		outcome = monitoring.OutcomeRejected
	default:
		outcome = monitoring.OutcomeError
	}
	duration := timer.Stop(outcome)
	span.SetTag("outcome", outcome)
	span.SetError(err)

	log := c.log
	if traceID := tracing.GetTraceID(spanCtx); traceID != "" {
		log = log.With(
			zap.String("trace_id", string(traceID)),
			zap.String("span_id", string(tracing.GetSpanID(spanCtx))))
	}
	if outcome == monitoring.OutcomeViolation {
		log.Error("evaluation aborted", zap.Error(err))
	} else {
		log.Debug("evaluated",
			zap.String("outcome", outcome),
			zap.Duration("duration", duration))
	}
	return v, err
}

// watch interrupts the runtime when ctx is canceled. The returned
// function stops watching and clears any pending interrupt.
func (c *Context) watch(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}

	rt := c.set.Runtime()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	return func() {
		close(done)
		wg.Wait()
		rt.ClearInterrupt()
	}
}
