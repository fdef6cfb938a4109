package intrinsics

import (
	"sync"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/jsrealm/internal/shared/id"
)

// Global is one shared global captured from the host global object.
type Global struct {
	Name      string
	Value     goja.Value
	Stability Stability
}

// Set holds the repaired host intrinsics of one goja runtime. It is
// immutable after acquisition; nested contexts share the same *Set.
type Set struct {
	id       id.RealmID
	rt       *goja.Runtime
	eval     *goja.Object
	fn       *goja.Object
	global   *goja.Object
	objProto *goja.Object
	globals  []Global
	errors   map[string]*goja.Object
	coerce   goja.Callable
	gopd     goja.Callable
	has      goja.Callable

	lock reentrantLock

	brokenMu sync.RWMutex
	broken   string
}

// ID returns the identifier of this set, used in logs.
func (s *Set) ID() id.RealmID { return s.id }

// Runtime returns the goja runtime the intrinsics belong to.
func (s *Set) Runtime() *goja.Runtime { return s.rt }

// Eval returns the raw, unconfined eval function.
func (s *Set) Eval() *goja.Object { return s.eval }

// Function returns the raw, unconfined Function constructor.
func (s *Set) Function() *goja.Object { return s.fn }

// HostGlobal returns the runtime's real global object.
func (s *Set) HostGlobal() *goja.Object { return s.global }

// ObjectPrototype returns Object.prototype of the runtime.
func (s *Set) ObjectPrototype() *goja.Object { return s.objProto }

// Globals returns the shared global descriptors in declaration order.
func (s *Set) Globals() []Global {
	out := make([]Global, len(s.globals))
	copy(out, s.globals)
	return out
}

// ErrorConstructor returns the captured error constructor called name, or
// the Error constructor when name is not one of the standard error names.
func (s *Set) ErrorConstructor(name string) *goja.Object {
	if ctor, ok := s.errors[name]; ok {
		return ctor
	}
	return s.errors["Error"]
}

// CoerceError returns the helper that reads [name, message, stack] of a
// thrown object as strings.
func (s *Set) CoerceError() goja.Callable { return s.coerce }

// GetOwnPropertyDescriptor returns the captured
// Object.getOwnPropertyDescriptor.
func (s *Set) GetOwnPropertyDescriptor() goja.Callable { return s.gopd }

// HasProperty reports whether name is found on obj or its prototype
// chain. Accessors are not invoked.
func (s *Set) HasProperty(obj *goja.Object, name string) bool {
	v, err := s.has(goja.Undefined(), obj, s.rt.ToValue(name))
	return err == nil && v.ToBoolean()
}

// Lock acquires the runtime lock. The lock is reentrant for the goroutine
// that holds it.
func (s *Set) Lock() { s.lock.Lock() }

// Unlock releases one level of the runtime lock.
func (s *Set) Unlock() { s.lock.Unlock() }

// Break marks the set as unusable after a fatal invariant violation. The
// first reason wins.
func (s *Set) Break(reason string) {
	s.brokenMu.Lock()
	defer s.brokenMu.Unlock()
	if s.broken == "" {
		s.broken = reason
	}
}

// Broken reports whether Break was called, and why.
func (s *Set) Broken() (string, bool) {
	s.brokenMu.RLock()
	defer s.brokenMu.RUnlock()
	return s.broken, s.broken != ""
}
