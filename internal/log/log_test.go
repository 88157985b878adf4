package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelsAndFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelInfo)
	Debug("hidden", "k", 1)
	assert.Empty(t, buf.String())

	Info("import done", "entries", 3, "source", "my calendar")
	assert.Contains(t, buf.String(), "[INFO] import done entries=3 source=\"my calendar\"")

	buf.Reset()
	SetLevel(LevelError)
	Warn("hidden too")
	Error("fetch failed", errors.New("boom"), "id", "main")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[ERROR] fetch failed err=boom id=main")
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" debug ")
	assert.True(t, ok)
	assert.Equal(t, LevelDebug, l)

	l, ok = ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, LevelInfo, l)
}
