package rtc

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestLoggerFactoryFiltersAndScopes(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	l := NewLoggerFactory(zerolog.WarnLevel).NewLogger("ice")
	l.Debugf("dropped %d", 1)
	l.Info("dropped too")
	l.Warnf("kept %s", "warning")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"scope":"ice"`)
	assert.Contains(t, out, `"message":"kept warning"`)
}
