package transform

import (
	"fmt"

	"github.com/GriffinCanCode/jsrealm/realm/scope"
)

// State is what flows through the pipeline.
type State struct {
	Source     string
	Endowments scope.Endowments
}

// Transform rewrites source text and endowments before evaluation.
type Transform interface {
	Rewrite(State) (State, error)
}

// Func adapts a function to Transform.
type Func func(State) (State, error)

// Rewrite calls f.
func (f Func) Rewrite(s State) (State, error) { return f(s) }

// Apply threads state through every transform of every list, in order.
// Endowments are cloned on the way in and on the way out so transforms
// never share a map with the caller or with the evaluation.
func Apply(state State, lists ...[]Transform) (State, error) {
	state.Endowments = state.Endowments.Clone()
	for _, list := range lists {
		for _, t := range list {
			if t == nil {
				continue
			}
			next, err := t.Rewrite(state)
			if err != nil {
				return State{}, err
			}
			state = next
		}
	}
	state.Endowments = state.Endowments.Clone()
	return state, nil
}

// Chain returns the pipeline for one evaluation: call-site transforms,
// then context transforms, then the mandatory rejections.
func Chain(call, context []Transform) [][]Transform {
	return [][]Transform{call, context, Mandatory}
}

// Mandatory transforms run last on every evaluation. They reject source
// the engine could treat differently from what the rest of the pipeline
// saw.
var Mandatory = []Transform{
	Func(RejectHTMLComments),
	Func(RejectImportExpressions),
}

// Reason identifies why a source was rejected.
type Reason string

const (
	ReasonHTMLComment      Reason = "html-comment"
	ReasonImportExpression Reason = "import-expression"
)

// RejectedSourceError reports source refused before any evaluation. It
// surfaces in confined code as a SyntaxError.
type RejectedSourceError struct {
	Reason Reason
	Line   int
}

func (e *RejectedSourceError) Error() string {
	switch e.Reason {
	case ReasonHTMLComment:
		return fmt.Sprintf("possible html comment syntax rejected around line %d", e.Line)
	case ReasonImportExpression:
		return fmt.Sprintf("possible import expression rejected around line %d", e.Line)
	default:
		return fmt.Sprintf("source rejected around line %d", e.Line)
	}
}

// ErrorName makes the error a SyntaxError at the error boundary.
func (e *RejectedSourceError) ErrorName() string { return "SyntaxError" }
