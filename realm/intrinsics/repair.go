package intrinsics

import (
	"fmt"

	"github.com/dop251/goja"
)

// repairSource tames the function constructors reachable through
// prototypes and the Annex B accessor helpers. It returns the original
// Function constructor, captured before taming.
const repairSource = `(function () {
  'use strict';

  const {
    defineProperty,
    defineProperties,
    getOwnPropertyDescriptor,
    getPrototypeOf,
    setPrototypeOf,
  } = Object;

  const FERAL_FUNCTION = getPrototypeOf(function () {}).constructor;

  function repairFunction(name, declaration) {
    let FunctionInstance;
    try {
      FunctionInstance = FERAL_FUNCTION('return ' + declaration)();
    } catch (e) {
      if (e instanceof SyntaxError) {
        return;
      }
      throw e;
    }
    const FunctionPrototype = getPrototypeOf(FunctionInstance);

    const TamedFunction = function () {
      throw new TypeError('Not available');
    };
    defineProperties(TamedFunction, { name: { value: name } });
    setPrototypeOf(TamedFunction, getPrototypeOf(FERAL_FUNCTION));
    defineProperty(TamedFunction, 'prototype', { value: FunctionPrototype });
    defineProperty(FunctionPrototype, 'constructor', { value: TamedFunction });
  }

  function repairAccessors() {
    const objectPrototype = Object.prototype;
    const lookupGetter = objectPrototype.__lookupGetter__;
    if (typeof lookupGetter !== 'function') {
      return;
    }
    try {
      (0, lookupGetter)('x');
    } catch (ignore) {
      return;
    }

    function toObject(obj) {
      if (obj === undefined || obj === null) {
        throw new TypeError("can't convert undefined or null to object");
      }
      return Object(obj);
    }

    function asPropertyName(obj) {
      if (typeof obj === 'symbol') {
        return obj;
      }
      return ` + "`${obj}`" + `;
    }

    function aFunction(obj, accessor) {
      if (typeof obj !== 'function') {
        throw new TypeError('invalid ' + accessor + ' usage');
      }
      return obj;
    }

    function lookup(O, prop) {
      let desc;
      while (O && !(desc = getOwnPropertyDescriptor(O, prop))) {
        O = getPrototypeOf(O);
      }
      return desc;
    }

    defineProperties(objectPrototype, {
      __defineGetter__: {
        value: function __defineGetter__(prop, func) {
          const O = toObject(this);
          defineProperty(O, prop, {
            get: aFunction(func, 'getter'),
            enumerable: true,
            configurable: true,
          });
        },
      },
      __defineSetter__: {
        value: function __defineSetter__(prop, func) {
          const O = toObject(this);
          defineProperty(O, prop, {
            set: aFunction(func, 'setter'),
            enumerable: true,
            configurable: true,
          });
        },
      },
      __lookupGetter__: {
        value: function __lookupGetter__(prop) {
          const desc = lookup(toObject(this), asPropertyName(prop));
          return desc && desc.get;
        },
      },
      __lookupSetter__: {
        value: function __lookupSetter__(prop) {
          const desc = lookup(toObject(this), asPropertyName(prop));
          return desc && desc.set;
        },
      },
    });
  }

  repairFunction('Function', 'function () {}');
  repairFunction('GeneratorFunction', 'function* () {}');
  repairFunction('AsyncFunction', 'async function () {}');
  repairFunction('AsyncGeneratorFunction', 'async function* () {}');
  repairAccessors();

  return FERAL_FUNCTION;
})`

// directEvalProbe returns "number" only when the eval passed in performs a
// direct eval, i.e. sees the caller's local scope.
const directEvalProbe = `var probe = 1; return eval('typeof probe');`

// coerceErrorSource reads name, message and stack of a thrown value as
// strings. It runs in the confined runtime so getters and toString
// overrides execute there.
const coerceErrorSource = "(function (e) { 'use strict'; return [`${e.name}`, `${e.message}`, `${e.stack || e.message}`]; })"

// hasPropertySource answers the in operator without running getters.
const hasPropertySource = "(function (o, k) { 'use strict'; return k in o; })"

// repair runs the repairs in rt and returns the original Function
// constructor.
func repair(rt *goja.Runtime) (*goja.Object, error) {
	fn, err := compileFunction(rt, "repair", repairSource)
	if err != nil {
		return nil, err
	}
	v, err := fn(goja.Undefined())
	if err != nil {
		return nil, fmt.Errorf("repair intrinsics: %w", err)
	}
	feral, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("repair intrinsics: %w", ErrUnsupportedHost)
	}
	return feral, nil
}

// probeDirectEval checks that eval is the engine's direct-eval identity.
func probeDirectEval(rt *goja.Runtime, feral, eval *goja.Object) error {
	ctor, ok := goja.AssertFunction(feral)
	if !ok {
		return fmt.Errorf("function constructor is not callable: %w", ErrUnsupportedHost)
	}
	v, err := ctor(goja.Undefined(), rt.ToValue("eval"), rt.ToValue(directEvalProbe))
	if err != nil {
		return fmt.Errorf("build direct eval probe: %w", err)
	}
	probe, ok := goja.AssertFunction(v)
	if !ok {
		return fmt.Errorf("direct eval probe is not callable: %w", ErrUnsupportedHost)
	}
	res, err := probe(goja.Undefined(), eval)
	if err != nil {
		return fmt.Errorf("run direct eval probe: %w", err)
	}
	if res.String() != "number" {
		return fmt.Errorf("eval is not the direct eval primitive: %w", ErrUnsupportedHost)
	}
	return nil
}

func compileFunction(rt *goja.Runtime, name, src string) (goja.Callable, error) {
	v, err := rt.RunScript(name, src)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("compile %s: not a function", name)
	}
	return fn, nil
}
