package validator_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("all rules pass", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("name", "john"),
			validator.ValidEmail("email", "john@example.com"),
		)
		assert.NoError(t, err)
	})

	t.Run("failures are aggregated in order", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("name", "  "),
			validator.ValidEmail("email", "nope"),
			validator.RequiredString("other", "ok"),
		)
		require.Error(t, err)
		assert.True(t, validator.IsValidationError(err))
		assert.ErrorIs(t, err, validator.ErrValidationFailed)

		verrs := validator.ExtractValidationErrors(err)
		assert.Equal(t, []string{"name", "email"}, verrs.Fields())
		assert.True(t, verrs.Has("email"))
		assert.False(t, verrs.Has("other"))
		assert.Contains(t, err.Error(), "email: must be a valid email address")
	})

	t.Run("extract through wrapping", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("outer: %w", validator.Apply(validator.RequiredString("x", "")))
		assert.Len(t, validator.ExtractValidationErrors(err), 1)
		assert.Nil(t, validator.ExtractValidationErrors(errors.New("plain")))
		assert.Nil(t, validator.ExtractValidationErrors(nil))
	})
}

func TestFormatRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule validator.Rule
		want bool
	}{
		{"email ok", validator.ValidEmail("f", "lead@example.com"), true},
		{"email with display name", validator.ValidEmail("f", "Lead <lead@example.com>"), false},
		{"email no tld", validator.ValidEmail("f", "lead@example"), false},
		{"email empty", validator.ValidEmail("f", ""), false},
		{"phone e164", validator.ValidPhone("f", "+14155550100"), true},
		{"phone with dashes", validator.ValidPhone("f", "+1-415-555-0100"), true},
		{"phone letters", validator.ValidPhone("f", "+1415CALLME"), false},
		{"phone short", validator.ValidPhone("f", "+12"), false},
		{"https url", validator.ValidURLWithScheme("f", "https://hooks.example.com/x", []string{"http", "https"}), true},
		{"ftp url", validator.ValidURLWithScheme("f", "ftp://example.com", []string{"http", "https"}), false},
		{"relative url", validator.ValidURLWithScheme("f", "/hooks", []string{"http", "https"}), false},
		{"max len ok", validator.MaxLenString("f", "abc", 3), true},
		{"max len too long", validator.MaxLenString("f", strings.Repeat("a", 4), 3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.rule.Check())
		})
	}
}

func TestKindRules(t *testing.T) {
	t.Parallel()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"s":"x","n":1.5,"b":true,"o":{},"a":[],"z":null}`), &decoded))

	assert.Equal(t, validator.KindString, validator.KindOf(decoded["s"]))
	assert.Equal(t, validator.KindNumber, validator.KindOf(decoded["n"]))
	assert.Equal(t, validator.KindBool, validator.KindOf(decoded["b"]))
	assert.Equal(t, validator.KindObject, validator.KindOf(decoded["o"]))
	assert.Equal(t, validator.KindArray, validator.KindOf(decoded["a"]))
	assert.Equal(t, validator.Kind(""), validator.KindOf(decoded["z"]))
	assert.Equal(t, validator.KindNumber, validator.KindOf(42))
	assert.Equal(t, validator.KindArray, validator.KindOf([]string{"x"}))

	assert.True(t, validator.RequiredKey("s", decoded).Check())
	assert.False(t, validator.RequiredKey("z", decoded).Check())
	assert.False(t, validator.RequiredKey("missing", decoded).Check())

	assert.True(t, validator.ValueKind("s", decoded["s"], validator.KindString).Check())
	assert.False(t, validator.ValueKind("s", decoded["s"], validator.KindNumber).Check())
	assert.True(t, validator.ValueKind("z", decoded["z"], validator.KindNumber).Check())
	assert.True(t, validator.ValueKind("o", decoded["o"], validator.KindAny).Check())
}
