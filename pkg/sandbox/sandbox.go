// Package sandbox implements the execution orchestrator: the top-level
// Run(pyArgs, files, jailerOverrides) -> EvalResult operation that composes
// the jailer configuration, cgroup/swap policy, MemFS workspace, bounded
// output reader, and timed output harvester into one invocation, per
// spec.md §4.8.
//
// Run is argv-shape-agnostic: it does not special-case Python. A caller
// building pyArgs for "/bin/bash -c <code>" instead of "python -c <code>"
// is already supported without a code change.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/python-discord/snekbox/pkg/attachment"
	"github.com/python-discord/snekbox/pkg/cgroup"
	"github.com/python-discord/snekbox/pkg/config"
	"github.com/python-discord/snekbox/pkg/jailerconfig"
	"github.com/python-discord/snekbox/pkg/jaillog"
	"github.com/python-discord/snekbox/pkg/memfs"
	"github.com/python-discord/snekbox/pkg/swap"
)

// state is the per-invocation progress marker described in spec §4.8's
// state machine. It exists for observability (logged with each failure
// warning and on completion) and is not branched on by callers.
type state int

const (
	stateIdle state = iota
	stateFSReady
	stateFilesWritten
	stateRunning
	stateDrained
	stateOverflowed
	stateHarvested
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateFSReady:
		return "FS_READY"
	case stateFilesWritten:
		return "FILES_WRITTEN"
	case stateRunning:
		return "RUNNING"
	case stateDrained:
		return "DRAINED"
	case stateOverflowed:
		return "OVERFLOWED"
	case stateHarvested:
		return "HARVESTED"
	case stateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Orchestrator composes the process-lifetime singletons (Configuration,
// JailerConfig, cgroup Version) that every Run call shares, read-only.
type Orchestrator struct {
	Config        *config.Config
	JailerConfig  *jailerconfig.Config
	CgroupVersion cgroup.Version
	Log           *logrus.Entry
}

// New builds an Orchestrator, creating the cgroup parents the jailer
// expects to already exist (spec §4.4: "the jailer will refuse controllers
// whose parent is absent"). log is tagged with component=sandbox the way
// the teacher tags every subsystem logger in pkg/vm/jailer.go.
func New(cfg *config.Config, jailerCfg *jailerconfig.Config, version cgroup.Version, log *logrus.Entry) (*Orchestrator, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "sandbox")

	var err error
	if version == cgroup.V2 {
		err = cgroup.InitV2(jailerCfg)
	} else {
		err = cgroup.InitV1(jailerCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("preparing cgroup %s hierarchy: %w", version, err)
	}

	return &Orchestrator{
		Config:        cfg,
		JailerConfig:  jailerCfg,
		CgroupVersion: version,
		Log:           log,
	}, nil
}

// Run executes one invocation: probe -> allocate-tmpfs -> write-seed-files
// -> build-argv -> spawn -> stream-stdout -> harvest -> unmount -> return.
//
// Every recoverable failure is converted into an EvalResult with
// ReturnCode absent and a diagnostic Stdout; the returned error is always
// nil. A canceled ctx kills the jailer, which then surfaces through
// ReturnCode as a signal termination, or as a SpawnError diagnostic when
// ctx is already done before the spawn.
func (o *Orchestrator) Run(ctx context.Context, pyArgs []string, files []*attachment.FileAttachment, jailerOverrides []string) (*EvalResult, error) {
	st := stateIdle
	log := o.Log

	mem, err := memfs.New(o.Config.MemFS.InstanceBytes, o.Config.MemFS.RootDir, log)
	if err != nil {
		st = stateDone
		log.WithField("state", st.String()).WithError(err).Warn("failed to construct memfs")
		return diagnosticResult(nil, fmt.Sprintf("MemFSError: %s", err)), nil
	}
	defer func() {
		if cerr := mem.Cleanup(); cerr != nil {
			log.WithError(cerr).Warn("failed to clean up memfs")
		}
	}()
	st = stateFSReady

	overrides, err := o.effectiveOverrides(mem, jailerOverrides)
	if err != nil {
		st = stateDone
		return diagnosticResult(nil, err.Error()), nil
	}

	seeds, werr := writeSeedFiles(mem, files)
	if werr != nil {
		st = stateDone
		log.WithField("state", st.String()).WithError(werr).Warn("failed to write seed files")
		return diagnosticResult(nil, werr.Error()), nil
	}
	st = stateFilesWritten

	logFile, err := os.CreateTemp("", "snekbox-jailer-log-*")
	if err != nil {
		st = stateDone
		return diagnosticResult(nil, fmt.Sprintf("SpawnError: %s", err)), nil
	}
	logPath := logFile.Name()
	_ = logFile.Close()
	defer os.Remove(logPath)

	argv := o.buildArgv(logPath, overrides, pyArgs)

	if containsNullByte(argv) {
		st = stateDone
		return diagnosticResult(argv, "ValueError: embedded null byte"), nil
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdoutReader, stdoutWriter, perr := os.Pipe()
	if perr != nil {
		st = stateDone
		return diagnosticResult(argv, fmt.Sprintf("SpawnError: %s", perr)), nil
	}
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stdoutWriter

	if err := cmd.Start(); err != nil {
		_ = stdoutWriter.Close()
		_ = stdoutReader.Close()
		st = stateDone
		log.WithField("state", st.String()).WithError(err).Warn("failed to spawn jailer")
		return diagnosticResult(argv, fmt.Sprintf("SpawnError: %s", err)), nil
	}
	// The child holds its own copy of the write end; closing the parent's
	// copy lets the read below see EOF once the child's output ends.
	_ = stdoutWriter.Close()
	st = stateRunning

	stdout, overflowed, readErr := readBounded(stdoutReader, o.Config.MemFS.ReadChunkBytes, o.Config.MemFS.MaxOutputBytes, cmd, log)
	_ = stdoutReader.Close()

	waitErr := cmd.Wait()

	if overflowed {
		st = stateOverflowed
	} else {
		st = stateDrained
	}

	if readErr != nil {
		st = stateDone
		log.WithField("state", st.String()).WithError(readErr).Warn("failed to read jailer output")
		return diagnosticResult(argv, readErr.Error()), nil
	}

	returnCode := exitCode(waitErr)

	deadline := time.Now().Add(time.Duration(o.Config.Harvest.TimeoutSeconds * float64(time.Second)))
	harvested, herr := mem.Enumerate(memfs.EnumerateOptions{
		Limit:    o.Config.MemFS.FileCountLimit,
		Pattern:  o.Config.MemFS.FilePattern,
		Exclude:  seeds,
		Deadline: deadline,
	})
	if herr != nil {
		st = stateDone
		log.WithField("state", st.String()).WithError(herr).Warn("failed to harvest output files")
		return diagnosticResult(argv, herr.Error()), nil
	}
	st = stateHarvested

	logBytes, _ := os.ReadFile(logPath)
	logText := string(logBytes)
	if logText == "" && returnCode != nil && *returnCode == 255 {
		logText = stdout
	}
	jaillog.Parse(log, logText, o.Config.Log.Debug)

	st = stateDone
	log.WithField("state", st.String()).Debug("invocation complete")

	return &EvalResult{
		Argv:       argv,
		ReturnCode: returnCode,
		Stdout:     stdout,
		Files:      harvested,
	}, nil
}

// effectiveOverrides computes the jailer-CLI override tokens spec §4.8
// step 2 describes: cgroup-version selection, swap-limit neutralization,
// and the bindmount exposing the workspace at a known name.
func (o *Orchestrator) effectiveOverrides(mem *memfs.MemFS, callerOverrides []string) ([]string, error) {
	var overrides []string

	if o.CgroupVersion == cgroup.V2 {
		overrides = append(overrides, "--use_cgroupv2")
	}

	ignore, err := swap.ShouldIgnoreLimit(o.JailerConfig, o.CgroupVersion, o.Log)
	if err != nil {
		return nil, fmt.Errorf("evaluating swap policy: %w", err)
	}
	if ignore {
		overrides = append(overrides, "--cgroup_mem_memsw_max", "0", "--cgroup_mem_swap_max", "-1")
	}

	overrides = append(overrides, callerOverrides...)
	overrides = append(overrides, "--bindmount", fmt.Sprintf("%s:home", mem.Home()))
	return overrides, nil
}

// writeSeedFiles writes files into mem.Home() and records each resulting
// (absolute path, mtime) for later exclusion from the harvest. Enumerate
// only walks mem.Output() (mem.Home()/output), so this exclusion only
// takes effect for a seed a caller places directly under output; seeds
// written elsewhere under home are outside the walked subtree already and
// never need excluding.
func writeSeedFiles(mem *memfs.MemFS, files []*attachment.FileAttachment) ([]memfs.Seed, error) {
	seeds := make([]memfs.Seed, 0, len(files))
	for _, f := range files {
		abs, err := f.SaveTo(mem.Home())
		if err != nil {
			return nil, newEvalError(categoryFileWrite, fmt.Sprintf("FileWriteError: Failed to create file '%s'.", filepath.Join(mem.Home(), f.Path)))
		}
		info, statErr := os.Stat(abs)
		if statErr != nil {
			return nil, newEvalError(categoryFileWrite, fmt.Sprintf("FileWriteError: Failed to create file '%s'.", abs))
		}
		seeds = append(seeds, memfs.Seed{AbsPath: abs, ModTime: info.ModTime()})
	}
	return seeds, nil
}

// buildArgv assembles [jailer, "--config", cfg, "--log", logfile,
// <overrides>, "--", exec_bin.path, *lstrip(exec_bin.arg), *lstrip(py_args)],
// per spec §4.8 step 4 and the lstrip supplement in SPEC_FULL.md §12.
func (o *Orchestrator) buildArgv(logPath string, overrides, pyArgs []string) []string {
	argv := []string{o.Config.Jailer.BinaryPath, "--config", o.Config.Jailer.ConfigPath, "--log", logPath}
	argv = append(argv, overrides...)
	argv = append(argv, "--")
	argv = append(argv, o.JailerConfig.ExecBinPath)
	argv = append(argv, lstrip(o.JailerConfig.ExecBinArg)...)
	argv = append(argv, lstrip(pyArgs)...)
	return argv
}

func containsNullByte(argv []string) bool {
	for _, a := range argv {
		for i := 0; i < len(a); i++ {
			if a[i] == 0 {
				return true
			}
		}
	}
	return false
}

// exitCode translates a cmd.Wait() error into the POSIX convention spec
// §4.8 step 7 describes: negative values (signal termination) become
// 128+N; a nil error or *exec.ExitError otherwise yields the exit status.
func exitCode(waitErr error) *int {
	if waitErr == nil {
		zero := 0
		return &zero
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				code := 128 + int(status.Signal())
				return &code
			}
			code := status.ExitStatus()
			return &code
		}
	}
	return nil
}

// diagnosticResult builds the absent-return-code EvalResult spec §4.11
// requires for every recoverable failure category.
func diagnosticResult(argv []string, diagnostic string) *EvalResult {
	return &EvalResult{Argv: argv, ReturnCode: nil, Stdout: diagnostic, Files: nil}
}
