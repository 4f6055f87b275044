package sandbox

import "github.com/python-discord/snekbox/pkg/attachment"

// EvalResult is the stable envelope returned to callers of Run, per
// spec.md §3's EvalResult entity.
type EvalResult struct {
	// Argv is the argv actually used to spawn the jailer.
	Argv []string
	// ReturnCode is nil when the invocation hit a recoverable failure
	// (workspace setup, seed-file write, spawn, output decoding, or
	// harvest); a single-line diagnostic then replaces Stdout.
	ReturnCode *int
	// Stdout is the captured combined stdout+stderr, or a diagnostic
	// string when ReturnCode is nil.
	Stdout string
	// Files is the harvested output file list; may be empty.
	Files []*attachment.FileAttachment
}

// evalErrorCategory tags the recoverable failure categories the
// orchestrator can hit, mirroring the *Error class names the diagnostic
// strings in spec.md §4.8/§4.9/§4.10/§4.11 are built from.
type evalErrorCategory string

const (
	categoryMemFS        evalErrorCategory = "MemFSError"
	categoryFileWrite    evalErrorCategory = "FileWriteError"
	categoryValueError   evalErrorCategory = "ValueError"
	categorySpawn        evalErrorCategory = "SpawnError"
	categoryUnicode      evalErrorCategory = "UnicodeDecodeError"
	categoryTimeout      evalErrorCategory = "TimeoutError"
	categoryFileParsing  evalErrorCategory = "FileParsingError"
)

// evalError is raised only within the orchestrator and caught at the top
// frame of Run, where it is converted into an EvalResult with ReturnCode
// absent, per spec.md §3's EvalError entity.
type evalError struct {
	category evalErrorCategory
	message  string
}

func (e *evalError) Error() string { return e.message }

func newEvalError(category evalErrorCategory, message string) *evalError {
	return &evalError{category: category, message: message}
}

// diagnostic renders the stable single-line string that replaces Stdout
// when an evalError aborts the run.
func (e *evalError) diagnostic() string {
	return e.message
}
