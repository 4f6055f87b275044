// Package memfs provides a unique, size-capped tmpfs workspace for a
// single sandboxed invocation, along with the bounded, deadline-aware
// output-file enumeration used to harvest results out of it.
package memfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/python-discord/snekbox/pkg/attachment"
	corefs "github.com/python-discord/snekbox/pkg/fs"
)

const (
	homeName   = "home"
	outputName = "output"

	// maxCreateAttempts bounds name-collision retries per spec §4.2.
	maxCreateAttempts = 10

	// maxWalkDepth is the directory-depth safety bound referenced by
	// spec §4.10; exceeding it is treated as a parsing error rather than
	// followed indefinitely.
	maxWalkDepth = 64
)

// ErrTimeout is returned by Enumerate when the supplied deadline is
// exceeded mid-walk.
var ErrTimeout = errors.New("TimeoutError: Exceeded time limit while parsing attachments")

// ErrDepthExceeded is returned by Enumerate when the output tree nests
// deeper than maxWalkDepth.
var ErrDepthExceeded = errors.New("FileParsingError: Exceeded directory depth limit while parsing attachments")

// ErrInvalidFilename is returned by Enumerate when a filename's bytes do
// not decode as valid UTF-8.
var ErrInvalidFilename = errors.New("FileParsingError: invalid bytes in filename while parsing attachments")

// Seed records a file written into the workspace before the jailed process
// ran, so Enumerate can exclude it by (path, mtime) identity.
type Seed struct {
	AbsPath string
	ModTime time.Time
}

// MemFS owns exactly one tmpfs mount. It must be released via Cleanup; if
// the owner drops its reference without calling Cleanup, a finalizer
// performs best-effort cleanup and logs a warning.
type MemFS struct {
	path         string
	instanceSize corefs.Size
	log          *logrus.Entry

	cleaned bool
}

// New creates a fresh tmpfs-backed workspace of instanceSize bytes under
// rootDir, with home/output subdirectories already created.
//
// Name collisions are retried up to 10 times; no lock is taken because the
// kernel itself serializes mount-target collisions.
func New(instanceSize corefs.Size, rootDir string, log *logrus.Entry) (*MemFS, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "memfs")

	if err := os.MkdirAll(rootDir, 0o777); err != nil {
		return nil, fmt.Errorf("creating memfs root %s: %w", rootDir, err)
	}

	var path string
	var mounted bool
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		candidate := filepath.Join(rootDir, uuid.NewString())
		if err := os.Mkdir(candidate, 0o777); err != nil {
			continue
		}
		if err := corefs.Mount("", candidate, "tmpfs", map[string]string{
			"size": fmt.Sprintf("%d", int64(instanceSize)),
		}); err != nil {
			_ = os.Remove(candidate)
			continue
		}
		path = candidate
		mounted = true
		break
	}
	if !mounted {
		return nil, fmt.Errorf("failed to generate a unique MemFS name in %d attempts", maxCreateAttempts)
	}

	m := &MemFS{path: path, instanceSize: instanceSize, log: log}

	if err := os.MkdirAll(m.Home(), 0o777); err != nil {
		m.forceCleanup()
		return nil, fmt.Errorf("creating home dir: %w", err)
	}
	if err := os.Chmod(m.Home(), 0o777); err != nil {
		m.forceCleanup()
		return nil, fmt.Errorf("chmod home dir: %w", err)
	}
	if err := os.MkdirAll(m.Output(), 0o777); err != nil {
		m.forceCleanup()
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.Chmod(m.Output(), 0o777); err != nil {
		m.forceCleanup()
		return nil, fmt.Errorf("chmod output dir: %w", err)
	}

	runtime.SetFinalizer(m, finalize)
	return m, nil
}

// finalize is invoked by the Go runtime if a MemFS is garbage collected
// without an explicit Cleanup call. It mirrors the Python implementation's
// weakref.finalize resource warning.
func finalize(m *MemFS) {
	if m.cleaned {
		return
	}
	m.log.Warnf("implicitly cleaning up MemFS %s; Cleanup was never called", m.path)
	m.forceCleanup()
}

// Name is the unique instance identifier (the tmpfs directory's basename).
func (m *MemFS) Name() string { return filepath.Base(m.path) }

// Path is the absolute root of the tmpfs mount.
func (m *MemFS) Path() string { return m.path }

// Home is the writable directory bind-mounted into the jail.
func (m *MemFS) Home() string { return filepath.Join(m.path, homeName) }

// Output is the subdirectory within Home that the harvester walks.
func (m *MemFS) Output() string { return filepath.Join(m.Home(), outputName) }

// Cleanup detaches the finalizer and unmounts/removes the workspace. It is
// safe to call more than once.
func (m *MemFS) Cleanup() error {
	if m.cleaned {
		return nil
	}
	runtime.SetFinalizer(m, nil)
	m.cleaned = true
	return m.unmountAndRemove()
}

func (m *MemFS) forceCleanup() {
	m.cleaned = true
	_ = m.unmountAndRemove()
}

func (m *MemFS) unmountAndRemove() error {
	if err := corefs.Unmount(m.path, corefs.MNTDetach); err != nil {
		return err
	}
	return os.RemoveAll(m.path)
}

// EnumerateOptions configures Enumerate.
type EnumerateOptions struct {
	// Limit is the maximum number of attachments to return.
	Limit int
	// Pattern is a filepath.Match-style glob applied to each entry's base
	// name; an empty Pattern matches every name. Files whose name starts
	// with "." or "_" are skipped whatever the Pattern, and directories
	// whose name starts with "." are not descended into.
	Pattern string
	// Exclude lists seed files to skip by (absolute path, mtime) identity.
	Exclude []Seed
	// Deadline is the wall-clock point past which the walk aborts.
	Deadline time.Time
}

// Enumerate walks the Output subtree once, yielding FileAttachments for
// regular files that pass pattern, exclusion, and limit checks, in the
// order specified by spec §4.2.
func (m *MemFS) Enumerate(opts EnumerateOptions) ([]*attachment.FileAttachment, error) {
	excluded := make(map[string]time.Time, len(opts.Exclude))
	for _, s := range opts.Exclude {
		excluded[s.AbsPath] = s.ModTime
	}

	var results []*attachment.FileAttachment
	var totalSize int64
	count := 0

	root := m.Output()
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !opts.Deadline.IsZero() && time.Now().After(opts.Deadline) {
			return ErrTimeout
		}

		if path != root {
			rel, relErr := filepath.Rel(root, path)
			if relErr == nil {
				if depth := strings.Count(rel, string(filepath.Separator)) + 1; depth > maxWalkDepth {
					return ErrDepthExceeded
				}
			}
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") {
			return nil
		}
		if opts.Pattern != "" {
			matched, matchErr := filepath.Match(opts.Pattern, d.Name())
			if matchErr != nil {
				return matchErr
			}
			if !matched {
				return nil
			}
		}

		if !utf8.ValidString(d.Name()) {
			return ErrInvalidFilename
		}

		info, statErr := os.Stat(path) // follow symlinks for size accounting
		if statErr != nil {
			if errors.Is(statErr, os.ErrNotExist) {
				return nil
			}
			return statErr
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		if excludedMtime, ok := excluded[path]; ok && excludedMtime.Equal(info.ModTime()) {
			return nil
		}

		count++
		if count > opts.Limit {
			m.log.Infof("max attachments %d reached, skipping remaining files", opts.Limit)
			return filepath.SkipAll
		}

		totalSize += info.Size()
		if totalSize > int64(m.instanceSize) {
			m.log.Warn("output size exceeded instance size, stopping enumeration")
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		fa, faErr := attachment.FromPath(path, rel)
		if faErr != nil {
			return faErr
		}
		results = append(results, fa)
		return nil
	})

	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}
