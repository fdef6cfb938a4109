package intrinsics

// Stability classifies a shared global by how it is installed on a sandbox
// global.
type Stability int

const (
	// Frozen values are primitives that can never change.
	Frozen Stability = iota
	// Stable values are made non-writable after shims have run.
	Stable
	// Unstable values stay writable and configurable so shims and confined
	// code may replace them.
	Unstable
)

func (s Stability) String() string {
	switch s {
	case Frozen:
		return "frozen"
	case Stable:
		return "stable"
	case Unstable:
		return "unstable"
	default:
		return "unknown"
	}
}

// frozenGlobals are the immutable value properties of the global object.
var frozenGlobals = []string{
	"Infinity",
	"NaN",
	"undefined",
}

// stableGlobals are functions, constructors and namespaces whose identity
// never needs to be replaced by a shim.
var stableGlobals = []string{
	// *** 18.2 Function Properties of the Global Object
	"isFinite",
	"isNaN",
	"parseFloat",
	"parseInt",

	"decodeURI",
	"decodeURIComponent",
	"encodeURI",
	"encodeURIComponent",

	// *** 18.3 Constructor Properties of the Global Object
	"Array",
	"ArrayBuffer",
	"BigInt",
	"BigInt64Array",
	"BigUint64Array",
	"Boolean",
	"DataView",
	"EvalError",
	"Float32Array",
	"Float64Array",
	"Int8Array",
	"Int16Array",
	"Int32Array",
	"Map",
	"Number",
	"Object",
	"RangeError",
	"ReferenceError",
	"Set",
	"String",
	"Symbol",
	"SyntaxError",
	"TypeError",
	"Uint8Array",
	"Uint8ClampedArray",
	"Uint16Array",
	"Uint32Array",
	"URIError",
	"WeakMap",
	"WeakSet",

	// *** 18.4 Other Properties of the Global Object
	"JSON",
	"Math",
	"Reflect",

	// *** Annex B
	"escape",
	"unescape",
}

// unstableGlobals may be replaced by shims (clock, randomness, locale and
// the engine-specific error stack machinery).
var unstableGlobals = []string{
	"Date",
	"Error",
	"Promise",
	"Proxy",
	"RegExp",
	"Intl",
}

// errorNames are the error constructors captured for the error boundary.
var errorNames = []string{
	"Error",
	"EvalError",
	"RangeError",
	"ReferenceError",
	"SyntaxError",
	"TypeError",
	"URIError",
}
