package realm

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// simpleParams admits ASCII identifiers separated by commas and spaces.
var simpleParams = regexp2.MustCompile(`^[\w\s,]*$`, regexp2.ECMAScript)

// FunctionSourceError reports arguments the confined Function refuses. It
// surfaces in confined code as a SyntaxError.
type FunctionSourceError struct {
	Reason string
}

func (e *FunctionSourceError) Error() string { return e.Reason }

// ErrorName makes the error a SyntaxError at the error boundary.
func (e *FunctionSourceError) ErrorName() string { return "SyntaxError" }

// BuildSource assembles the source of a function expression from Function
// constructor arguments. It evaluates nothing; the result is meant to be
// evaluated by a confined evaluator.
func BuildSource(params []string, body string) (string, error) {
	joined := strings.Join(params, ",")

	if ok, err := simpleParams.MatchString(joined); err != nil || !ok {
		return "", &FunctionSourceError{Reason: "shim limitation: Function arg must be simple ASCII identifiers, possibly separated by commas: no default values, pattern matches, or non-ASCII parameter names"}
	}

	if err := validateBody(body); err != nil {
		return "", err
	}

	if strings.Contains(joined, ")") {
		return "", &FunctionSourceError{Reason: "shim limitation: Function arg string contains parenthesis"}
	}

	if len(joined) > 0 {
		joined += "\n/*``*/"
	}
	return fmt.Sprintf("(function(%s){\n%s\n})", joined, body), nil
}

// validateBody parses body as the body of a parameterless function. The
// wrapped source must be exactly one function expression, so a body that
// closes the function early and appends code is refused.
func validateBody(body string) error {
	src := "(function() {\n" + body + "\n})"
	program, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return &FunctionSourceError{Reason: err.Error()}
	}
	if len(program.Body) == 1 {
		if stmt, ok := program.Body[0].(*ast.ExpressionStatement); ok {
			if _, ok := stmt.Expression.(*ast.FunctionLiteral); ok {
				return nil
			}
		}
	}
	return &FunctionSourceError{Reason: "Function body is not a single function body"}
}
