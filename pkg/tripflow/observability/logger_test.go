package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestEnrichLogger(t *testing.T) {
	logger, buf := testLogger()

	enriched := EnrichLogger(logger, "corr-1", "trip-9", "trip_start")
	enriched.Info("processing")

	out := buf.String()
	assert.Contains(t, out, "correlation_id=corr-1")
	assert.Contains(t, out, "trip_id=trip-9")
	assert.Contains(t, out, "kind=trip_start")

	assert.Nil(t, EnrichLogger(nil, "c", "t", "k"))
}

func TestLogHelpers(t *testing.T) {
	logger, buf := testLogger()

	LogEventReceived(logger, "corr-1", 128)
	assert.Contains(t, buf.String(), "payload_bytes=128")

	buf.Reset()
	LogEventOutcome(logger, "corr-1", "completed", 3.5)
	assert.Contains(t, buf.String(), "outcome=completed")

	buf.Reset()
	LogEventFailure(logger, "corr-1", "VALIDATION", errors.New("bad fare"))
	assert.Contains(t, buf.String(), "category=VALIDATION")
	assert.Contains(t, buf.String(), "bad fare")

	buf.Reset()
	LogSweep(logger, 4, 1.2)
	assert.Contains(t, buf.String(), "expired=4")
}

func TestLogHelpersNilLogger(t *testing.T) {
	// All helpers must tolerate a nil logger.
	LogEventReceived(nil, "corr-1", 0)
	LogEventOutcome(nil, "corr-1", "pending", 0)
	LogEventFailure(nil, "corr-1", "SYSTEM", errors.New("x"))
	LogSweep(nil, 0, 0)
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), float64(0))
}
