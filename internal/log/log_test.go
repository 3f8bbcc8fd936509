package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Config{Level: "info", Format: FormatJSON})
	require.NoError(t, err)

	l.Named("evo").Info("generation done", Int("generation", 3), Float64("best", 1.5), ErrorField(errors.New("x")))
	l.Debug("hidden")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "generation done", got[0]["msg"])
	assert.Equal(t, "evo", got[0]["logger"])
	assert.Equal(t, float64(3), got[0]["generation"])
	assert.Equal(t, 1.5, got[0]["best"])
	assert.Equal(t, "x", got[0]["error"])
}

func TestAutoFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Config{Format: FormatAuto})
	require.NoError(t, err)
	l.Info("hello")
	assert.Len(t, lines(t, &buf), 1)
}

func TestFilterRules(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Config{Format: FormatJSON, Filter: "debug:evo info,warn,error:*"})
	require.NoError(t, err)

	l.Named("evo").Debug("kept")
	l.Named("sim").Debug("dropped")
	l.Named("sim").Info("kept too")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "kept", got[0]["msg"])
	assert.Equal(t, "kept too", got[1]["msg"])
}

func TestSetLevelPropagates(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Config{Level: "warn", Format: FormatJSON})
	require.NoError(t, err)
	child := l.Named("training")
	child.Info("dropped")
	l.SetLevel(DebugLevel)
	assert.True(t, child.Enabled(DebugLevel))
	child.Info("kept")
	assert.Len(t, lines(t, &buf), 1)
}

func TestConfigErrors(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, Config{Format: "xml"})
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, Config{Filter: "loud:evo"})
	assert.Error(t, err)
}

func TestResetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { ResetDefault(prev) })

	var buf bytes.Buffer
	l, err := New(&buf, Config{Format: FormatJSON})
	require.NoError(t, err)
	ResetDefault(l)
	Info("through default", String("k", "v"))

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "v", got[0]["k"])
}
