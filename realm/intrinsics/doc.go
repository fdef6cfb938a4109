/*
Package intrinsics acquires and hardens the host primitives a sandbox is
built from.

# Overview

A goja runtime plays the role of a host evaluation context. Its global
eval and Function are raw, unconfined primitives: anything they evaluate
sees the real global object. Acquisition captures them once, together with
the shared globals and error constructors every sandbox global is built
from, into an immutable Set.

# Repairs

Before capture, trusted code runs inside the runtime:

 1. The constructor property of the Function, GeneratorFunction,
    AsyncFunction and AsyncGeneratorFunction prototypes is replaced by a
    tamed function throwing TypeError("Not available"), so
    (function(){}).constructor no longer reaches the raw Function.
 2. The Annex B accessor helpers (__defineGetter__ and friends) are
    replaced by versions built on Object.defineProperty when the engine's
    own versions accept an undefined receiver.

A probe then checks that the captured eval performs direct eval. If it
does not, acquisition fails with ErrUnsupportedHost.

# Sources

  - Fresh: a new runtime nobody has executed code in
  - Current: a runtime the embedder already owns, repaired in place
  - Pool: pre-repaired fresh sets refilled in the background

# Concurrency

goja runtimes are single-threaded. Every Set carries a lock that is
reentrant per goroutine; callers hold it for the duration of any work on
the runtime.
*/
package intrinsics
