package jaillog

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func captureLogger() (*logrus.Entry, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logrus.NewEntry(logger), &buf
}

func TestParseInfoSuppressedWithoutPidPrefixOrDebug(t *testing.T) {
	log, buf := captureLogger()
	Parse(log, "[I][2024-01-01T00:00:00] starting up", false)
	require.Empty(t, buf.String())
}

func TestParseInfoShownWithPidPrefix(t *testing.T) {
	log, buf := captureLogger()
	Parse(log, "[I][2024-01-01T00:00:00] pid=42 exited with status 0", false)
	require.Contains(t, buf.String(), "pid=42 exited with status 0")
}

func TestParseInfoShownInDebugMode(t *testing.T) {
	log, buf := captureLogger()
	Parse(log, "[I][2024-01-01T00:00:00] starting up", true)
	require.Contains(t, buf.String(), "starting up")
}

func TestParseWarningAndError(t *testing.T) {
	log, buf := captureLogger()
	Parse(log, "[W][2024-01-01T00:00:00] something odd\n[E][2024-01-01T00:00:00] fatal problem", false)
	out := buf.String()
	require.Contains(t, out, "something odd")
	require.Contains(t, out, "fatal problem")
}

func TestParseUnparseableLineLogsWarning(t *testing.T) {
	log, buf := captureLogger()
	Parse(log, "this is not a jailer log line", false)
	require.Contains(t, buf.String(), "unparseable jailer log line")
}

func TestParseDebugModeKeepsSourcePrefix(t *testing.T) {
	log, buf := captureLogger()
	Parse(log, "[D][2024-01-01T00:00:00][123] jail.cc:42 debug detail", true)
	out := buf.String()
	require.Contains(t, out, "debug detail")
	require.Contains(t, out, "jail.cc:42")
}
