package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogStoreOperation(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "debug", Output: &buf}).StoreLogger("sql")

	l.LogStoreOperation("get", 2*time.Millisecond, 1, nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "assetcatalog", entry["service"])
	assert.Equal(t, "store", entry["component"])
	assert.Equal(t, "sql", entry["backend"])
	assert.Equal(t, "get", entry["operation"])
	assert.EqualValues(t, 1, entry["record_count"])
}

func TestLogStoreOperationError(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "error", Output: &buf}).StoreLogger("avu")

	l.LogStoreOperation("add", time.Millisecond, 0, nil)
	assert.Zero(t, buf.Len(), "debug entries are filtered at error level")

	l.LogStoreOperation("add", time.Millisecond, 0, errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().StoreLogger("sql").LogStoreOperation("query", 0, 3, nil)
	})
}
