package channel

import (
	"os"
	"os/exec"

	"github.com/discoverlab/enginekit/errors"
)

// Platform selects the transport realization at startup.
type Platform string

const (
	// PlatformMemory runs the worker as an in-process goroutine.
	PlatformMemory Platform = "memory"

	// PlatformProcess runs the worker as a sandboxed subprocess over stdio.
	PlatformProcess Platform = "process"

	// PlatformNATS reaches an already-running remote worker over NATS.
	PlatformNATS Platform = "nats"
)

// Config selects and parameterizes a transport realization.
type Config struct {
	// Platform picks the realization.
	Platform Platform `toml:"platform"`

	// BufferSize is the main-channel buffer per handle.
	BufferSize int `toml:"buffer_size"`

	// WorkerCommand is the subprocess argv for PlatformProcess.
	WorkerCommand []string `toml:"worker_command"`

	// NATS parameterizes PlatformNATS.
	NATS NATSConfig `toml:"nats"`
}

// DefaultConfig returns a memory-platform config.
func DefaultConfig() Config {
	return Config{
		Platform:   PlatformMemory,
		BufferSize: defaultBufferSize,
		NATS:       DefaultNATSConfig(),
	}
}

// Spawn creates the worker execution context for the configured platform
// and returns the manager-side handle. The entry function is the worker
// entrypoint and is only used by the memory platform; the process platform
// starts WorkerCommand, and the NATS platform dials a worker that is
// already running.
func Spawn(cfg Config, entry func(Handle)) (Handle, error) {
	switch cfg.Platform {
	case PlatformMemory, "":
		return SpawnGoroutine(entry, cfg.BufferSize)
	case PlatformProcess:
		if len(cfg.WorkerCommand) == 0 {
			return nil, errors.New(errors.ErrCodeSpawnFailed, "no worker command configured")
		}
		cmd := exec.Command(cfg.WorkerCommand[0], cfg.WorkerCommand[1:]...)
		cmd.Stderr = os.Stderr
		return SpawnProcess(cmd, cfg.BufferSize)
	case PlatformNATS:
		return DialNATS(cfg.NATS, cfg.BufferSize)
	default:
		return nil, errors.Newf(errors.ErrCodeSpawnFailed, "unknown platform %q", cfg.Platform)
	}
}

// Inherit returns the worker-side handle for platforms whose worker runs
// outside the spawning process.
func Inherit(cfg Config) (Handle, error) {
	switch cfg.Platform {
	case PlatformProcess:
		return InheritedHandle(os.Stdin, os.Stdout, cfg.BufferSize), nil
	case PlatformNATS:
		return ServeNATS(cfg.NATS, cfg.BufferSize)
	default:
		return nil, errors.Newf(errors.ErrCodeSpawnFailed, "platform %q has no inherited side", cfg.Platform)
	}
}
