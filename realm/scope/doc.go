/*
Package scope implements the scope interposer of a confined evaluation.

The scoped evaluator runs confined source inside a with statement whose
scope object is the Interposer's proxy. Every free variable of the source
therefore goes through three operations:

  - Exists (the proxy's has trap) decides whether the name resolves here at
    all. In strict mode an unknown name falls through to the real global
    scope and raises a ReferenceError there.
  - Lookup reads endowments first, then the sandbox global.
  - Assign writes endowments under the WritePolicy, else the sandbox
    global.

Lookup also owns the escape hatch: while Armed, the first lookup of eval
returns the raw eval so that the evaluator's own eval call is a direct
eval with the with scope in its lexical chain. Settle must follow every
evaluation step; an unconsumed hatch is a fatal Violation.
*/
package scope
