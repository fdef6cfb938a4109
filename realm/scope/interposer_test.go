package scope

import (
	"context"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsrealm/realm/boundary"
	"github.com/GriffinCanCode/jsrealm/realm/intrinsics"
)

func newFixture(t *testing.T) (*intrinsics.Set, *goja.Object) {
	t.Helper()
	set, err := intrinsics.Fresh{}.Acquire(context.Background())
	require.NoError(t, err)
	global := set.Runtime().CreateObject(set.ObjectPrototype())
	return set, global
}

// confinedPanic runs fn and returns the confined exception it panicked with.
func confinedPanic(t *testing.T, fn func()) *goja.Object {
	t.Helper()
	var thrown *goja.Object
	func() {
		defer func() {
			if x := recover(); x != nil {
				obj, ok := x.(*goja.Object)
				require.True(t, ok, "panic value %T", x)
				thrown = obj
			}
		}()
		fn()
	}()
	require.NotNil(t, thrown, "expected a confined exception")
	return thrown
}

func TestEscapeHatchSingleUse(t *testing.T) {
	set, global := newFixture(t)
	safeEval := set.Runtime().ToValue("confined eval")
	require.NoError(t, global.Set("eval", safeEval))

	i := New(Config{Set: set, Global: global})
	assert.Equal(t, StateIdle, i.State())

	// not armed: the global's eval
	assert.Equal(t, "confined eval", i.Lookup("eval").String())

	require.NoError(t, i.Arm())
	assert.Error(t, i.Arm())
	assert.Equal(t, StateArmed, i.State())

	assert.True(t, i.Lookup("eval").SameAs(set.Eval()))
	assert.Equal(t, StateConsumed, i.State())
	assert.Equal(t, "confined eval", i.Lookup("eval").String())

	assert.NoError(t, i.Settle())
	_, broken := set.Broken()
	assert.False(t, broken)
}

func TestSettleViolation(t *testing.T) {
	tests := []struct {
		name string
		arm  bool
	}{
		{"never armed", false},
		{"armed not consumed", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, global := newFixture(t)
			i := New(Config{Set: set, Global: global})
			if tt.arm {
				require.NoError(t, i.Arm())
			}

			err := i.Settle()
			var violation boundary.Violation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, StateViolated, i.State())

			_, broken := set.Broken()
			assert.True(t, broken)

			// revoked: any use of the scope object fails
			rt := set.Runtime()
			require.NoError(t, rt.Set("scopeObj", i.Object()))
			_, err = rt.RunString(`'x' in scopeObj`)
			assert.Error(t, err)
		})
	}
}

func TestAbort(t *testing.T) {
	set, global := newFixture(t)

	idle := New(Config{Set: set, Global: global})
	assert.False(t, idle.Abort())
	assert.Equal(t, StateIdle, idle.State())

	i := New(Config{Set: set, Global: global})
	require.NoError(t, i.Arm())
	assert.True(t, i.Abort())
	assert.Equal(t, StateAborted, i.State())
	assert.False(t, i.Abort())

	_, broken := set.Broken()
	assert.False(t, broken)

	rt := set.Runtime()
	require.NoError(t, rt.Set("scopeObj", i.Object()))
	_, err := rt.RunString(`'x' in scopeObj`)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	set, global := newFixture(t)
	rt := set.Runtime()
	require.NoError(t, global.Set("onGlobal", 1))

	var getterThis goja.Value
	endowments := Endowments{
		"data": Data(rt.ToValue("d")),
		"getter": Accessor(func(this goja.Value) goja.Value {
			getterThis = this
			return rt.ToValue("g")
		}, nil),
		"setterOnly": Accessor(nil, func(goja.Value, goja.Value) {}),
		"onGlobal":   Data(rt.ToValue("shadowed")),
	}
	i := New(Config{Set: set, Global: global, Endowments: endowments})

	assert.Equal(t, "d", i.Lookup("data").String())
	assert.Equal(t, "g", i.Lookup("getter").String())
	assert.True(t, getterThis.SameAs(global))
	assert.True(t, goja.IsUndefined(i.Lookup("setterOnly")))
	assert.Equal(t, "shadowed", i.Lookup("onGlobal").String())
	assert.True(t, goja.IsUndefined(i.Lookup("absent")))
	assert.True(t, i.Lookup("toString").SameAs(set.ObjectPrototype().Get("toString")))
}

func TestAssign(t *testing.T) {
	set, _ := newFixture(t)
	rt := set.Runtime()

	base := func() Endowments {
		return Endowments{
			"ro":  Data(rt.ToValue(1)),
			"rw":  Mutable(rt.ToValue(1)),
			"acc": Accessor(func(goja.Value) goja.Value { return rt.ToValue(0) }, func(goja.Value, goja.Value) {}),
			"get": Accessor(func(goja.Value) goja.Value { return rt.ToValue(0) }, nil),
		}
	}

	tests := []struct {
		policy  WritePolicy
		name    string
		allowed bool
	}{
		{WritesExplicit, "ro", false},
		{WritesExplicit, "rw", true},
		{WritesExplicit, "acc", true},
		{WritesExplicit, "get", false},
		{WritesLocal, "ro", true},
		{WritesLocal, "rw", true},
		{WritesLocal, "get", false},
		{WritesRejected, "rw", false},
		{WritesRejected, "acc", false},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String()+"/"+tt.name, func(t *testing.T) {
			global := rt.CreateObject(set.ObjectPrototype())
			endowments := base()
			i := New(Config{Set: set, Global: global, Endowments: endowments, Writes: tt.policy})

			if tt.allowed {
				assert.NotPanics(t, func() { i.Assign(tt.name, rt.ToValue(2)) })
				return
			}
			thrown := confinedPanic(t, func() { i.Assign(tt.name, rt.ToValue(2)) })
			assert.True(t, thrown.Get("constructor").SameAs(rt.Get("TypeError")))
		})
	}
}

func TestAssignIsPrivate(t *testing.T) {
	set, global := newFixture(t)
	rt := set.Runtime()

	endowments := Endowments{"counter": Mutable(rt.ToValue(1))}
	i := New(Config{Set: set, Global: global, Endowments: endowments})

	i.Assign("counter", rt.ToValue(5))
	assert.Equal(t, int64(5), i.Lookup("counter").ToInteger())
	b, ok := i.Endowment("counter")
	require.True(t, ok)
	assert.Equal(t, int64(5), b.Value.ToInteger())

	// the caller's map is untouched
	assert.Equal(t, int64(1), endowments["counter"].Value.ToInteger())
}

func TestAssignGlobal(t *testing.T) {
	set, global := newFixture(t)
	rt := set.Runtime()
	i := New(Config{Set: set, Global: global})

	i.Assign("fresh", rt.ToValue(3))
	assert.Equal(t, int64(3), global.Get("fresh").ToInteger())

	require.NoError(t, global.DefineDataProperty("fixed", rt.ToValue(1), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE))
	thrown := confinedPanic(t, func() { i.Assign("fixed", rt.ToValue(2)) })
	assert.True(t, thrown.Get("constructor").SameAs(rt.Get("TypeError")))
}

func TestExists(t *testing.T) {
	set, global := newFixture(t)
	rt := set.Runtime()
	require.NoError(t, global.Set("onGlobal", 1))
	require.NoError(t, set.HostGlobal().Set("hostOnly", "secret"))

	i := New(Config{Set: set, Global: global, Endowments: Endowments{"endowed": Data(rt.ToValue(1))}})

	tests := []struct {
		name string
		want bool
	}{
		{"eval", true},
		{"endowed", true},
		{"onGlobal", true},
		{"hasOwnProperty", true},
		{"hostOnly", true},
		{"nowhere", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, i.Exists(tt.name))
		})
	}

	// host-only names read through the sandbox global
	assert.True(t, goja.IsUndefined(i.Lookup("hostOnly")))

	sloppy := New(Config{Set: set, Global: global, SloppyGlobals: true})
	assert.True(t, sloppy.Exists("nowhere"))
}

func TestUnexpectedTraps(t *testing.T) {
	set, global := newFixture(t)
	rt := set.Runtime()
	i := New(Config{Set: set, Global: global})
	require.NoError(t, rt.Set("scopeObj", i.Object()))

	tests := []string{
		`Object.keys(scopeObj)`,
		`Object.getPrototypeOf(scopeObj)`,
		`Object.defineProperty(scopeObj, 'x', { value: 1 })`,
		`delete scopeObj.x`,
		`Object.preventExtensions(scopeObj)`,
		`Object.isExtensible(scopeObj)`,
		`Object.setPrototypeOf(scopeObj, null)`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := rt.RunString(src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unexpected scope handler trap called")
		})
	}
}

func TestWithStatement(t *testing.T) {
	set, global := newFixture(t)
	rt := set.Runtime()
	require.NoError(t, global.Set("g", 10))

	endowments := Endowments{"e": Mutable(rt.ToValue(1))}
	i := New(Config{Set: set, Global: global, Endowments: endowments})
	require.NoError(t, rt.Set("scopeObj", i.Object()))

	v, err := rt.RunString(`
		(function () {
			with (scopeObj) {
				return (function () {
					'use strict';
					e = e + g;
					g = 20;
					return [e, g, typeof nowhere].join(',');
				})();
			}
		})()
	`)
	require.NoError(t, err)
	assert.Equal(t, "11,20,undefined", v.String())
	assert.Equal(t, int64(20), global.Get("g").ToInteger())

	_, err = rt.RunString(`
		(function () {
			with (scopeObj) {
				return (function () { 'use strict'; nowhere = 1; })();
			}
		})()
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ReferenceError")
}

func TestParseWritePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    WritePolicy
		wantErr bool
	}{
		{"", WritesExplicit, false},
		{"explicit", WritesExplicit, false},
		{"Local", WritesLocal, false},
		{" rejected ", WritesRejected, false},
		{"sometimes", WritesExplicit, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWritePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndowmentsClone(t *testing.T) {
	var nilMap Endowments
	clone := nilMap.Clone()
	assert.NotNil(t, clone)
	assert.Empty(t, clone)

	rt := goja.New()
	e := Values(rt, map[string]any{"b": 2, "a": "x"})
	c := e.Clone()
	c["z"] = Data(rt.ToValue(0))

	assert.Equal(t, []string{"a", "b"}, e.Names())
	assert.Equal(t, []string{"a", "b", "z"}, c.Names())
	assert.False(t, e["a"].Writable)
}
