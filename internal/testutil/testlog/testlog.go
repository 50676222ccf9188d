package testlog

import (
	"testing"

	"github.com/danmuck/avlgate/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures test logging and tags output with the test name.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("test start")
}
