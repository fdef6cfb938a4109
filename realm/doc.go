/*
Package realm creates sandbox contexts and evaluates untrusted JavaScript
in them.

A root context owns a goja runtime whose intrinsics were repaired by
package intrinsics, plus a sandbox global built from the shared globals.
Nested contexts reuse their root's intrinsics with a global of their own.

Every Evaluate call:

 1. runs the transform pipeline (call-site, context, then the mandatory
    rejections of HTML comments and import expressions)
 2. builds a fresh scope.Interposer over the sandbox global and the
    endowments
 3. calls the raw eval exactly once, as a direct eval inside a with
    statement scoped by the interposer, in strict mode
 4. settles the interposer and returns through the error boundary

The sandbox global carries its own eval, Function and a Realm object whose
makeCompartment creates nested contexts from confined code.

Basic use:

	ctx, err := realm.NewRoot(realm.Config{Logger: log})
	if err != nil {
		return err
	}
	v, err := ctx.Evaluate("a + b", ctx.Endow(map[string]any{"a": 1, "b": 2}))
*/
package realm
