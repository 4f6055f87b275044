package sandbox

import (
	"io"
	"os/exec"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// readBounded reads r in chunkSize chunks, accumulating into a buffer.
// After each chunk, if the accumulated size exceeds maxSize, it sends
// SIGTERM to cmd's process (not SIGKILL, so the jailer can reap its
// children cleanly) and stops reading, per spec §4.9.
//
// It always drains r to EOF or overflow and lets the caller Wait() on cmd;
// it never waits itself, matching spec's "always wait for the subprocess
// before returning" being the caller's responsibility at the Run level.
func readBounded(r io.Reader, chunkSize, maxSize int64, cmd *exec.Cmd, log *logrus.Entry) (string, bool, error) {
	if chunkSize <= 0 {
		chunkSize = 10 * 1024
	}

	buf := make([]byte, 0, chunkSize)
	chunk := make([]byte, chunkSize)
	var overflowed bool

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if maxSize > 0 && int64(len(buf)) > maxSize {
				overflowed = true
				if cmd.Process != nil {
					if termErr := cmd.Process.Signal(unix.SIGTERM); termErr != nil {
						log.WithError(termErr).Warn("failed to send SIGTERM after output overflow")
					}
				}
				break
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return string(buf), overflowed, err
		}
	}

	if !utf8.Valid(buf) {
		return "", overflowed, newEvalError(categoryUnicode, "UnicodeDecodeError: invalid Unicode in output pipe")
	}

	return string(buf), overflowed, nil
}
