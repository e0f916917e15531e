package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingSpec(t *testing.T) ToolSpec {
	t.Helper()
	for _, s := range BuiltinSpecs() {
		if s.Name == "ping_host" {
			return s
		}
	}
	t.Fatal("ping_host missing from builtin specs")
	return ToolSpec{}
}

func TestValidateAppliesDefaults(t *testing.T) {
	spec := pingSpec(t)

	got, err := spec.Validate(map[string]any{"target": "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got.String("target"))
	assert.Equal(t, 4, got.Int("count"))
	assert.Equal(t, 2, got.Int("timeout"))
	_, hasArgs := got["arguments"]
	assert.False(t, hasArgs)
}

func TestValidateRejects(t *testing.T) {
	nmap := ToolSpec{}
	for _, s := range BuiltinSpecs() {
		if s.Name == "nmap_scan" {
			nmap = s
		}
	}

	cases := []struct {
		name   string
		spec   ToolSpec
		params map[string]any
		param  string
	}{
		{"missing required", pingSpec(t), map[string]any{}, "target"},
		{"wrong type", pingSpec(t), map[string]any{"target": "h", "count": "four"}, "count"},
		{"fractional integer", pingSpec(t), map[string]any{"target": "h", "count": 4.5}, "count"},
		{"integer overflow", pingSpec(t), map[string]any{"target": "h", "count": 1e19}, "count"},
		{"integer underflow", pingSpec(t), map[string]any{"target": "h", "count": -1e19}, "count"},
		{"pattern", pingSpec(t), map[string]any{"target": "h; rm -rf /"}, "target"},
		{"unknown param", pingSpec(t), map[string]any{"target": "h", "verbose": true}, "verbose"},
		{"enum", nmap, map[string]any{"target": "h", "scan_type": "stealth"}, "scan_type"},
		{"bad ports", nmap, map[string]any{"target": "h", "ports": "bad port string"}, "ports"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.spec.Validate(tc.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.param, ve.Param)
			assert.Equal(t, tc.spec.Name, ve.Tool)
		})
	}
}

func TestValidateCoercesNumbers(t *testing.T) {
	spec := pingSpec(t)

	got, err := spec.Validate(map[string]any{"target": "h", "count": float64(6)})
	require.NoError(t, err)
	assert.Equal(t, 6, got["count"])

	num := ToolSpec{Name: "n", Params: []Param{{Name: "ratio", Type: TypeNumber}}}
	got, err = num.Validate(map[string]any{"ratio": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got["ratio"])
}

func TestSpecCheck(t *testing.T) {
	cases := []struct {
		name string
		spec ToolSpec
	}{
		{"no name", ToolSpec{}},
		{"duplicate param", ToolSpec{Name: "x", Params: []Param{{Name: "a", Type: TypeString}, {Name: "a", Type: TypeString}}}},
		{"required with default", ToolSpec{Name: "x", Params: []Param{{Name: "a", Type: TypeString, Required: true, Default: "v"}}}},
		{"empty enum", ToolSpec{Name: "x", Params: []Param{{Name: "a", Type: TypeEnum}}}},
		{"default outside enum", ToolSpec{Name: "x", Params: []Param{{Name: "a", Type: TypeEnum, Enum: []string{"b"}, Default: "c"}}}},
		{"default wrong type", ToolSpec{Name: "x", Params: []Param{{Name: "a", Type: TypeInteger, Default: "3"}}}},
		{"bad pattern", ToolSpec{Name: "x", Params: []Param{{Name: "a", Type: TypeString, Pattern: "("}}}},
		{"unknown type", ToolSpec{Name: "x", Params: []Param{{Name: "a", Type: "date"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.spec.check())
		})
	}

	for _, s := range BuiltinSpecs() {
		assert.NoError(t, s.check(), s.Name)
	}
}
