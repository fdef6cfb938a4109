package intrinsics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acquireFresh(t *testing.T) *Set {
	t.Helper()
	set, err := Fresh{}.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, set)
	return set
}

func TestFreshAcquire(t *testing.T) {
	set := acquireFresh(t)

	assert.NotNil(t, set.Runtime())
	assert.NotNil(t, set.Eval())
	assert.NotNil(t, set.Function())
	assert.True(t, set.HostGlobal().SameAs(set.Runtime().GlobalObject()))
	assert.True(t, strings.HasPrefix(set.ID().String(), "rlm_"))

	stability := make(map[string]Stability)
	for _, g := range set.Globals() {
		stability[g.Name] = g.Stability
	}

	tests := []struct {
		name string
		want Stability
	}{
		{"NaN", Frozen},
		{"undefined", Frozen},
		{"JSON", Stable},
		{"Object", Stable},
		{"parseInt", Stable},
		{"Date", Unstable},
		{"Error", Unstable},
		{"RegExp", Unstable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stability[tt.name]
			require.True(t, ok, "global %s not captured", tt.name)
			assert.Equal(t, tt.want, got)
		})
	}

	// names absent from the host are skipped
	_, ok := stability["Intl"]
	assert.Equal(t, set.HostGlobal().Get("Intl") != nil, ok)
}

func TestFunctionConstructorsTamed(t *testing.T) {
	set := acquireFresh(t)
	rt := set.Runtime()

	tests := []struct {
		name string
		src  string
	}{
		{"function", `(function () {}).constructor('return 1')`},
		{"generator", `Object.getPrototypeOf(function* () {}).constructor('yield 1')`},
		{"async", `Object.getPrototypeOf(async function () {}).constructor('return 1')`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rt.RunString(tt.src)
			require.Error(t, err)

			var ex *goja.Exception
			require.True(t, errors.As(err, &ex))
			assert.Contains(t, ex.Value().String(), "Not available")
		})
	}

	// instanceof still holds for ordinary functions
	v, err := rt.RunString(`(function () {}) instanceof (function () {}).constructor`)
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())

	// the captured constructor is the untamed one
	ctor, ok := goja.AssertFunction(set.Function())
	require.True(t, ok)
	fn, err := ctor(goja.Undefined(), rt.ToValue("return 7"))
	require.NoError(t, err)
	call, ok := goja.AssertFunction(fn)
	require.True(t, ok)
	res, err := call(goja.Undefined())
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.ToInteger())
}

func TestAccessorHelpers(t *testing.T) {
	set := acquireFresh(t)
	rt := set.Runtime()

	present, err := rt.RunString(`typeof Object.prototype.__lookupGetter__ === 'function'`)
	require.NoError(t, err)
	if !present.ToBoolean() {
		t.Skip("runtime has no Annex B accessor helpers")
	}

	v, err := rt.RunString(`
		var o = {};
		o.__defineGetter__('x', function () { return 42; });
		[o.x, typeof o.__lookupGetter__('x'), typeof Object.create(o).__lookupGetter__('x')].join(',')
	`)
	require.NoError(t, err)
	assert.Equal(t, "42,function,function", v.String())

	_, err = rt.RunString(`
		var frozen = Object.freeze({});
		frozen.__defineGetter__('y', function () { return 1; });
	`)
	assert.Error(t, err)
}

func TestErrorConstructor(t *testing.T) {
	set := acquireFresh(t)
	global := set.HostGlobal()

	for _, name := range errorNames {
		assert.True(t, set.ErrorConstructor(name).SameAs(global.Get(name)), name)
	}
	assert.True(t, set.ErrorConstructor("BogusError").SameAs(global.Get("Error")))
}

func TestCoerceError(t *testing.T) {
	set := acquireFresh(t)
	rt := set.Runtime()

	errObj, err := rt.RunString(`new TypeError('boom')`)
	require.NoError(t, err)

	v, err := set.CoerceError()(goja.Undefined(), errObj)
	require.NoError(t, err)
	parts := v.ToObject(rt)
	assert.Equal(t, "TypeError", parts.Get("0").String())
	assert.Equal(t, "boom", parts.Get("1").String())
	assert.NotEmpty(t, parts.Get("2").String())
}

func TestCurrent(t *testing.T) {
	t.Run("nil runtime", func(t *testing.T) {
		_, err := Current{}.Acquire(context.Background())
		assert.ErrorIs(t, err, ErrUnsupportedHost)
	})

	t.Run("existing runtime", func(t *testing.T) {
		rt := goja.New()
		require.NoError(t, rt.Set("hostValue", 1))

		set, err := Current{Runtime: rt}.Acquire(context.Background())
		require.NoError(t, err)
		assert.Same(t, rt, set.Runtime())
	})

	t.Run("replaced eval", func(t *testing.T) {
		rt := goja.New()
		_, err := rt.RunString(`eval = function (s) { return 'string'; }`)
		require.NoError(t, err)

		_, err = Current{Runtime: rt}.Acquire(context.Background())
		assert.ErrorIs(t, err, ErrUnsupportedHost)
	})
}

func TestAcquireCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fresh{}.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBroken(t *testing.T) {
	set := acquireFresh(t)

	_, broken := set.Broken()
	assert.False(t, broken)

	set.Break("first")
	set.Break("second")
	reason, broken := set.Broken()
	assert.True(t, broken)
	assert.Equal(t, "first", reason)
}

func TestHasProperty(t *testing.T) {
	set := acquireFresh(t)
	rt := set.Runtime()

	v, err := rt.RunString(`
		var calls = 0;
		var probeObj = Object.create({ inherited: 1 });
		Object.defineProperty(probeObj, 'lazy', { get: function () { calls++; return 1; } });
		probeObj
	`)
	require.NoError(t, err)
	obj := v.(*goja.Object)

	assert.True(t, set.HasProperty(obj, "lazy"))
	assert.True(t, set.HasProperty(obj, "inherited"))
	assert.True(t, set.HasProperty(obj, "toString"))
	assert.False(t, set.HasProperty(obj, "absent"))
	assert.Equal(t, int64(0), rt.Get("calls").ToInteger())
}
