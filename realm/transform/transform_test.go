package transform

import (
	"errors"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsrealm/realm/scope"
)

func TestMandatoryRejections(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"plain", "1 + 1", ""},
		{"html open", "a <!-- b", "possible html comment syntax rejected around line 1"},
		{"html close later line", "a\nb\nc --> d", "possible html comment syntax rejected around line 3"},
		{"first marker wins", "x\n-->\n<!--", "possible html comment syntax rejected around line 2"},
		{"import call", "const x = 1;\n\nimport('fs')", "possible import expression rejected around line 3"},
		{"import spaced", "import  \t ('x')", "possible import expression rejected around line 1"},
		{"import line comment", "import// hi\n('x')", "possible import expression rejected around line 1"},
		{"import block comment", "\nimport/* hi */('x')", "possible import expression rejected around line 2"},
		{"import after unicode", "'é€'\n\nimport('x')", "possible import expression rejected around line 3"},
		{"identifier suffix", "reimport('x')", ""},
		{"identifier prefix", "importer('x')", ""},
		{"member", "obj.imports", ""},
		{"import statement", "import x from 'y'", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Apply(State{Source: tt.src}, Mandatory)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.src, out.Source)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())

			var rejected *RejectedSourceError
			require.True(t, errors.As(err, &rejected))
			assert.Equal(t, "SyntaxError", rejected.ErrorName())
		})
	}
}

func TestApplyOrderAndClone(t *testing.T) {
	rt := goja.New()
	caller := scope.Endowments{"a": scope.Data(rt.ToValue(1))}

	var seen []string
	appendTag := func(tag string) Transform {
		return Func(func(s State) (State, error) {
			seen = append(seen, tag)
			s.Source += tag
			s.Endowments[tag] = scope.Data(rt.ToValue(tag))
			return s, nil
		})
	}

	out, err := Apply(State{Source: "x", Endowments: caller},
		Chain([]Transform{appendTag("1"), nil}, []Transform{appendTag("2")})...)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, seen)
	assert.Equal(t, "x12", out.Source)
	assert.Equal(t, []string{"1", "2", "a"}, out.Endowments.Names())

	// the caller's map never sees transform writes
	assert.Equal(t, []string{"a"}, caller.Names())
}

func TestApplyStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	called := false

	_, err := Apply(State{Source: "x"},
		[]Transform{Func(func(State) (State, error) { return State{}, boom })},
		[]Transform{Func(func(s State) (State, error) { called = true; return s, nil })},
	)
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestMandatoryRunsAfterRewrites(t *testing.T) {
	sneak := Func(func(s State) (State, error) {
		s.Source = strings.Replace(s.Source, "IMPORT", "import", 1)
		return s, nil
	})

	_, err := Apply(State{Source: "IMPORT('x')"}, Chain([]Transform{sneak}, nil)...)
	var rejected *RejectedSourceError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, ReasonImportExpression, rejected.Reason)
}
