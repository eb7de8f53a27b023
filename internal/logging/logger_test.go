package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" WARNING "))
	assert.Equal(t, ERROR, ParseLevel("Error"))
	assert.Equal(t, INFO, ParseLevel("nonsense"), "неизвестный уровень должен давать INFO")
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel(INFO)

	GetComponentLogger("test").Info("hello %d", 42)
	GetComponentLogger("test").Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "hello 42")
	assert.Contains(t, out, "component=test")
	assert.NotContains(t, out, "hidden", "DEBUG не должен выводиться на уровне INFO")
	assert.Same(t, GetComponentLogger("test"), GetComponentLogger("test"), "логгер компонента должен кэшироваться")
	assert.Contains(t, GetLoggerManager().ListComponents(), "test")
}

func TestHexDump(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))
	big := make([]byte, 300)
	assert.Contains(t, HexDump(big), "(44 more bytes)")
}
