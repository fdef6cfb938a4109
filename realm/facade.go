package realm

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/jsrealm/realm/scope"
	"github.com/GriffinCanCode/jsrealm/realm/transform"
)

// facadeError is raised in confined code as a TypeError.
type facadeError string

func (e facadeError) Error() string     { return string(e) }
func (e facadeError) ErrorName() string { return "TypeError" }

// facade builds the Realm object installed on the sandbox global. Confined
// code uses it to create compartments: nested contexts sharing this
// context's intrinsics.
func (c *Context) facade() goja.Value {
	rt := c.set.Runtime()
	obj := rt.CreateObject(c.set.ObjectPrototype())

	makeCompartment := c.bound.Func(func(call goja.FunctionCall) goja.Value {
		cfg, err := c.compartmentConfig(call.Argument(0))
		if err != nil {
			panic(err)
		}
		child, err := c.NewNested(cfg)
		if err != nil {
			panic(err)
		}
		return child.compartment()
	})
	c.setName(makeCompartment, "makeCompartment", 0)
	_ = obj.DefineDataProperty("makeCompartment", makeCompartment, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	return obj
}

// compartment is the confined view of a context: its global and an
// evaluate method.
func (c *Context) compartment() *goja.Object {
	rt := c.set.Runtime()
	obj := rt.CreateObject(c.set.ObjectPrototype())

	global := rt.ToValue(func(goja.FunctionCall) goja.Value { return c.global })
	c.setName(global, "get global", 0)
	_ = obj.DefineAccessorProperty("global", global, nil, goja.FLAG_TRUE, goja.FLAG_FALSE)

	evaluate := c.bound.Func(func(call goja.FunctionCall) goja.Value {
		endowments, err := c.readEndowments(call.Argument(1))
		if err != nil {
			panic(err)
		}
		var transforms []transform.Transform
		if opts, ok := call.Argument(2).(*goja.Object); ok {
			if transforms, err = c.readTransforms(opts.Get("transforms")); err != nil {
				panic(err)
			}
		}
		v, err := c.eval.evaluate(call.Argument(0).String(), endowments, transforms, nil)
		if err != nil {
			panic(err)
		}
		return v
	})
	c.setName(evaluate, "evaluate", 1)
	_ = obj.DefineDataProperty("evaluate", evaluate, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	return obj
}

// compartmentConfig reads makeCompartment options. Shims only apply to
// roots and are not accepted here.
func (c *Context) compartmentConfig(v goja.Value) (Config, error) {
	cfg := Config{EndowmentWrites: c.cfg.EndowmentWrites}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return cfg, nil
	}
	opts, ok := v.(*goja.Object)
	if !ok {
		return cfg, facadeError("compartment options must be an object")
	}

	transforms, err := c.readTransforms(opts.Get("transforms"))
	if err != nil {
		return cfg, err
	}
	cfg.Transforms = transforms
	cfg.SloppyGlobals = truthy(opts.Get("sloppyGlobals"))
	cfg.ConfigurableGlobals = truthy(opts.Get("configurableGlobals"))
	return cfg, nil
}

// readTransforms turns an array of {rewrite(state)} objects into
// transforms.
func (c *Context) readTransforms(v goja.Value) ([]transform.Transform, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	list, ok := v.(*goja.Object)
	if !ok {
		return nil, facadeError("transforms must be an array")
	}

	n := list.Get("length").ToInteger()
	out := make([]transform.Transform, 0, n)
	for i := int64(0); i < n; i++ {
		t, err := c.readTransform(list.Get(strconv.FormatInt(i, 10)))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Context) readTransform(v goja.Value) (transform.Transform, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, facadeError("transform must be an object")
	}
	rewrite, ok := goja.AssertFunction(obj.Get("rewrite"))
	if !ok {
		return nil, facadeError("transform.rewrite must be a function")
	}

	return transform.Func(func(s transform.State) (transform.State, error) {
		rt := c.set.Runtime()
		arg := rt.CreateObject(c.set.ObjectPrototype())
		_ = arg.Set("src", s.Source)
		_ = arg.Set("endowments", c.endowmentsObject(s.Endowments))

		res, err := rewrite(obj, arg)
		if err != nil {
			return s, err
		}
		out, ok := res.(*goja.Object)
		if !ok {
			return s, facadeError("transform.rewrite must return an object")
		}
		endowments, err := c.readEndowments(out.Get("endowments"))
		if err != nil {
			return s, err
		}
		return transform.State{Source: out.Get("src").String(), Endowments: endowments}, nil
	}), nil
}

// endowmentsObject exposes endowments to a confined transform as an
// ordinary object of data and accessor properties.
func (c *Context) endowmentsObject(e scope.Endowments) *goja.Object {
	rt := c.set.Runtime()
	obj := rt.CreateObject(c.set.ObjectPrototype())
	for _, name := range e.Names() {
		b := e[name]
		if !b.IsAccessor() {
			writable := goja.FLAG_FALSE
			if b.Writable {
				writable = goja.FLAG_TRUE
			}
			_ = obj.DefineDataProperty(name, orUndefined(b.Value), writable, goja.FLAG_TRUE, goja.FLAG_TRUE)
			continue
		}

		var get, set goja.Value
		if b.Get != nil {
			getter := b.Get
			get = rt.ToValue(func(call goja.FunctionCall) goja.Value {
				return orUndefined(getter(call.This))
			})
		}
		if b.Set != nil {
			setter := b.Set
			set = rt.ToValue(func(call goja.FunctionCall) goja.Value {
				setter(call.This, call.Argument(0))
				return goja.Undefined()
			})
		}
		_ = obj.DefineAccessorProperty(name, get, set, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}
	return obj
}

// readEndowments reads the own properties of a confined object as
// endowments. Property descriptors are taken with the captured
// Object.getOwnPropertyDescriptor, so accessors are kept, not invoked.
func (c *Context) readEndowments(v goja.Value) (scope.Endowments, error) {
	out := scope.Endowments{}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return out, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, facadeError("endowments must be an object")
	}

	rt := c.set.Runtime()
	gopd := c.set.GetOwnPropertyDescriptor()
	for _, name := range obj.GetOwnPropertyNames() {
		dv, err := gopd(goja.Undefined(), obj, rt.ToValue(name))
		if err != nil {
			return nil, err
		}
		desc, ok := dv.(*goja.Object)
		if !ok {
			continue
		}

		if !ownKey(desc, "get") {
			out[name] = scope.Binding{
				Value:    desc.Get("value"),
				Writable: truthy(desc.Get("writable")),
			}
			continue
		}

		var b scope.Binding
		if getter, ok := goja.AssertFunction(desc.Get("get")); ok {
			b.Get = func(this goja.Value) goja.Value {
				res, err := getter(this)
				if err != nil {
					throw(err)
				}
				return res
			}
		}
		if setter, ok := goja.AssertFunction(desc.Get("set")); ok {
			b.Set = func(this, v goja.Value) {
				if _, err := setter(this, v); err != nil {
					throw(err)
				}
			}
		}
		if !b.IsAccessor() {
			// An accessor with neither half reads as undefined.
			b = scope.Binding{Value: goja.Undefined()}
		}
		out[name] = b
	}
	return out, nil
}

// throw rethrows an error returned by a confined callable from inside a
// Go callback.
func throw(err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex.Value())
	}
	panic(err)
}

// ownKey reports whether a descriptor object has its own name property.
// Inherited keys are ignored so Object.prototype cannot forge a field.
func ownKey(obj *goja.Object, name string) bool {
	for _, k := range obj.Keys() {
		if k == name {
			return true
		}
	}
	return false
}

func truthy(v goja.Value) bool {
	return v != nil && v.ToBoolean()
}

func orUndefined(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return v
}
