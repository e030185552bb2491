package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "123e4567-e89b-12d3-a456-426614174000"

func strictPayload(t *testing.T, overrides map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"ID":          testID,
		"Project":     "ABC",
		"Test ID":     "T001",
		"Timestamp":   "2026-01-30T11:22:33",
		"Test Status": "PASS",
		"Data":        map[string]any{"key1": "value1"},
	}
	for k, v := range overrides {
		if v == nil {
			delete(body, k)
			continue
		}
		body[k] = v
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func permissivePayload(t *testing.T, overrides map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"ID":      testID,
		"Project": "ABC",
		"TestID":  "T001",
		"Area":    "Zone A",
		"Status":  "OK",
		"Date":    "30012026T11:22:33",
		"Data":    map[string]any{"temperature": 21.5, "nested": map[string]any{"ok": true}},
	}
	for k, v := range overrides {
		if v == nil {
			delete(body, k)
			continue
		}
		body[k] = v
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func TestNewValidator(t *testing.T) {
	t.Run("success - strict", func(t *testing.T) {
		v, err := NewValidator(Strict)
		require.NoError(t, err)
		assert.Equal(t, Strict, v.Variant())
	})

	t.Run("success - permissive", func(t *testing.T) {
		v, err := NewValidator(Permissive)
		require.NoError(t, err)
		assert.Equal(t, Permissive, v.Variant())
	})

	t.Run("error - unknown variant", func(t *testing.T) {
		_, err := NewValidator(Variant(99))
		require.Error(t, err)
	})
}

func TestStrictSchema_Validate(t *testing.T) {
	s := NewStrictSchema()

	t.Run("success - valid message", func(t *testing.T) {
		msg, err := s.Validate(strictPayload(t, nil))
		require.NoError(t, err)
		assert.Equal(t, Strict, msg.Variant)
		assert.Equal(t, testID, msg.ID)
		assert.Equal(t, "ABC", msg.Project)
		assert.Equal(t, "T001", msg.TestID)
		assert.Equal(t, "2026-01-30T11:22:33", msg.Timestamp)
		assert.Equal(t, "PASS", msg.Status)
		assert.JSONEq(t, `{"key1":"value1"}`, string(msg.Data))
	})

	t.Run("success - accepted timestamp shapes", func(t *testing.T) {
		for _, ts := range []string{
			"2026-01-30T11:22:33Z",
			"2026-01-30T11:22:33.123456+02:00",
			"2026-01-30 11:22:33",
			"2026-01-30T11:22",
			"2026-01-30",
		} {
			_, err := s.Validate(strictPayload(t, map[string]any{"Timestamp": ts}))
			assert.NoError(t, err, ts)
		}
	})

	t.Run("success - empty data and twenty entries", func(t *testing.T) {
		_, err := s.Validate(strictPayload(t, map[string]any{"Data": map[string]any{}}))
		require.NoError(t, err)

		data := map[string]any{}
		for i := 0; i < 20; i++ {
			data[fmt.Sprintf("k%d", i)] = "v"
		}
		_, err = s.Validate(strictPayload(t, map[string]any{"Data": data}))
		require.NoError(t, err)
	})

	t.Run("success - value with space and semicolon at max length", func(t *testing.T) {
		value := strings.Repeat("a; ", 42) + "ab"
		require.Len(t, value, 128)
		_, err := s.Validate(strictPayload(t, map[string]any{"Data": map[string]any{"k": value}}))
		require.NoError(t, err)
	})

	t.Run("error - payload is not JSON", func(t *testing.T) {
		_, err := s.Validate([]byte(`{not json`))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - payload is not an object", func(t *testing.T) {
		_, err := s.Validate([]byte(`["ID"]`))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - invalid uuid", func(t *testing.T) {
		_, err := s.Validate(strictPayload(t, map[string]any{"ID": "not-a-uuid"}))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "UUID")
	})

	t.Run("error - project pattern", func(t *testing.T) {
		for _, p := range []string{"abc", "AB", "ABCD", "A-C"} {
			_, err := s.Validate(strictPayload(t, map[string]any{"Project": p}))
			assert.ErrorIs(t, err, ErrInvalid, p)
		}
	})

	t.Run("error - test id length", func(t *testing.T) {
		for _, id := range []string{"T1", "T1234567890"} {
			_, err := s.Validate(strictPayload(t, map[string]any{"Test ID": id}))
			assert.ErrorIs(t, err, ErrInvalid, id)
		}
	})

	t.Run("error - low-side date format", func(t *testing.T) {
		_, err := s.Validate(strictPayload(t, map[string]any{"Timestamp": "30012026T11:22:33"}))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "Timestamp")
	})

	t.Run("error - missing field", func(t *testing.T) {
		_, err := s.Validate(strictPayload(t, map[string]any{"Test Status": nil}))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - extra field", func(t *testing.T) {
		_, err := s.Validate(strictPayload(t, map[string]any{"Area": "Zone A"}))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - too many data entries", func(t *testing.T) {
		data := map[string]any{}
		for i := 0; i < 21; i++ {
			data[fmt.Sprintf("k%d", i)] = "v"
		}
		_, err := s.Validate(strictPayload(t, map[string]any{"Data": data}))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - data value outside alphabet names the key", func(t *testing.T) {
		_, err := s.Validate(strictPayload(t, map[string]any{"Data": map[string]any{"name": "hello!"}}))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("error - data value length", func(t *testing.T) {
		for _, v := range []string{"", strings.Repeat("a", 129)} {
			_, err := s.Validate(strictPayload(t, map[string]any{"Data": map[string]any{"k": v}}))
			assert.ErrorIs(t, err, ErrInvalid)
		}
	})

	t.Run("error - data value not a string", func(t *testing.T) {
		_, err := s.Validate(strictPayload(t, map[string]any{"Data": map[string]any{"k": 1}}))
		require.ErrorIs(t, err, ErrInvalid)
	})
}

func TestPermissiveSchema_Validate(t *testing.T) {
	s := NewPermissiveSchema()

	t.Run("success - valid message with nested data", func(t *testing.T) {
		msg, err := s.Validate(permissivePayload(t, nil))
		require.NoError(t, err)
		assert.Equal(t, Permissive, msg.Variant)
		assert.Equal(t, "Zone A", msg.Area)
		assert.Equal(t, "30012026T11:22:33", msg.Timestamp)
		assert.Equal(t, "OK", msg.Status)
		assert.JSONEq(t, `{"temperature":21.5,"nested":{"ok":true}}`, string(msg.Data))
	})

	t.Run("error - iso timestamp is rejected", func(t *testing.T) {
		_, err := s.Validate(permissivePayload(t, map[string]any{"Date": "2026-01-30T11:22:33"}))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - impossible calendar date", func(t *testing.T) {
		_, err := s.Validate(permissivePayload(t, map[string]any{"Date": "31022026T11:22:33"}))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - strict keys are unsupported", func(t *testing.T) {
		_, err := s.Validate(permissivePayload(t, map[string]any{"Test ID": "T001"}))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - missing area", func(t *testing.T) {
		_, err := s.Validate(permissivePayload(t, map[string]any{"Area": nil}))
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("error - data is not an object", func(t *testing.T) {
		_, err := s.Validate(permissivePayload(t, map[string]any{"Data": "text"}))
		require.ErrorIs(t, err, ErrInvalid)
	})
}
