// Package boundary converts exceptions crossing between host code and
// confined code.
//
// Every error that leaves a host operation into confined code, or leaves
// confined code into a Go caller, is rebuilt from the captured error
// constructors with plain string name, message and stack. Thrown
// primitives are kept as they are. Two kinds of failure are never
// converted: Violation, which must unwind without giving confined code a
// chance to catch it, and goja interrupts.
package boundary
