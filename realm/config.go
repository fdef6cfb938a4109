package realm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/jsrealm/realm/intrinsics"
	"github.com/GriffinCanCode/jsrealm/realm/scope"
	"github.com/GriffinCanCode/jsrealm/realm/transform"
)

// Kind tells a root context, with its own intrinsics, from a nested one
// sharing its parent's.
type Kind int

const (
	KindRoot Kind = iota
	KindNested
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindNested:
		return "nested"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Config configures a new context.
type Config struct {
	// Shims are sources run against the global of a new root context, after
	// the shims inherited from the enclosing root. Nested contexts ignore
	// them.
	Shims []string
	// Transforms run on every evaluation in the context, after call-site
	// transforms and before the mandatory ones.
	Transforms []transform.Transform
	// SloppyGlobals makes every free variable resolve through the sandbox,
	// so assignments to unknown names create globals instead of failing.
	SloppyGlobals bool
	// ConfigurableGlobals leaves the shared globals writable and
	// configurable.
	ConfigurableGlobals bool
	// EndowmentWrites decides which endowment assignments succeed.
	EndowmentWrites scope.WritePolicy

	// Source provides intrinsics for root contexts. Defaults to
	// intrinsics.Fresh.
	Source intrinsics.Source
	// Logger, Metrics and Tracer default to the parent's for nested and
	// derived contexts, and to no-ops otherwise.
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
}

// EvalOption configures one evaluation.
type EvalOption func(*evalOptions)

type evalOptions struct {
	transforms []transform.Transform
}

// WithTransforms adds call-site transforms that run before the context's
// own.
func WithTransforms(ts ...transform.Transform) EvalOption {
	return func(o *evalOptions) {
		o.transforms = append(o.transforms, ts...)
	}
}
