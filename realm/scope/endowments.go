package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja"
)

// Binding is one endowment: either a data binding or an accessor pair.
type Binding struct {
	// Value is the data binding's value.
	Value goja.Value
	// Writable marks a data binding as assignable under WritesExplicit.
	Writable bool

	// Get and Set make the binding an accessor. Both receive the sandbox
	// global as this.
	Get func(this goja.Value) goja.Value
	Set func(this, v goja.Value)
}

// Data returns a read-only data binding.
func Data(v goja.Value) Binding {
	return Binding{Value: v}
}

// Mutable returns a writable data binding.
func Mutable(v goja.Value) Binding {
	return Binding{Value: v, Writable: true}
}

// Accessor returns an accessor binding. Either function may be nil.
func Accessor(get func(this goja.Value) goja.Value, set func(this, v goja.Value)) Binding {
	return Binding{Get: get, Set: set}
}

// IsAccessor reports whether b has a getter or a setter.
func (b Binding) IsAccessor() bool {
	return b.Get != nil || b.Set != nil
}

// Endowments are per-evaluation bindings layered above the sandbox global.
type Endowments map[string]Binding

// Clone returns a shallow copy. The copy of a nil map is empty, not nil.
func (e Endowments) Clone() Endowments {
	out := make(Endowments, len(e))
	for name, b := range e {
		out[name] = b
	}
	return out
}

// Names returns the endowment names in sorted order.
func (e Endowments) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values converts plain Go values into read-only data bindings.
func Values(rt *goja.Runtime, values map[string]any) Endowments {
	out := make(Endowments, len(values))
	for name, v := range values {
		out[name] = Data(rt.ToValue(v))
	}
	return out
}

// WritePolicy decides which endowment assignments confined code may make.
type WritePolicy int

const (
	// WritesExplicit accepts writes to data bindings marked Writable and to
	// accessors with a setter.
	WritesExplicit WritePolicy = iota
	// WritesLocal accepts writes to every data binding. Writes land in the
	// evaluation's private copy and never reach the caller's map.
	WritesLocal
	// WritesRejected rejects every endowment write.
	WritesRejected
)

func (p WritePolicy) String() string {
	switch p {
	case WritesExplicit:
		return "explicit"
	case WritesLocal:
		return "local"
	case WritesRejected:
		return "rejected"
	default:
		return fmt.Sprintf("WritePolicy(%d)", int(p))
	}
}

// ParseWritePolicy parses "explicit", "local" or "rejected". The empty
// string selects WritesExplicit.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "explicit":
		return WritesExplicit, nil
	case "local":
		return WritesLocal, nil
	case "rejected":
		return WritesRejected, nil
	default:
		return WritesExplicit, fmt.Errorf("unknown endowment write policy %q", s)
	}
}

// AllowsData reports whether a data binding accepts assignment.
func (p WritePolicy) AllowsData(b Binding) bool {
	switch p {
	case WritesLocal:
		return true
	case WritesRejected:
		return false
	default:
		return b.Writable
	}
}

// AllowsAccessor reports whether an accessor binding accepts assignment.
func (p WritePolicy) AllowsAccessor(b Binding) bool {
	return p != WritesRejected && b.Set != nil
}
