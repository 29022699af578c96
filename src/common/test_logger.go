package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testWriter adapts a *testing.T into an io.Writer so logrus output is
// interleaved with the rest of a test's output instead of going to stderr.
type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// NewTestLogger returns a logrus.Logger wired to write through t.Logf, the
// way babble's common.NewTestLogger does for every package's tests.
func NewTestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.Out = testWriter{t: t}
	logger.Level = logrus.DebugLevel
	return logger
}
