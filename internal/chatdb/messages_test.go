package chatdb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullableJSON_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, nullableJSON(nil))
	assert.Nil(t, nullableJSON(json.RawMessage{}))
}

func TestNullableJSON_PassesThroughRaw(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	got := nullableJSON(raw)
	assert.Equal(t, raw, got)
}
