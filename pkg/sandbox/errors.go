package sandbox

import "errors"

var (
	// ErrInvalidRuntime is returned when the sandbox runtime is invalid
	ErrInvalidRuntime = errors.New("invalid sandbox runtime")

	// ErrInvalidCPULimit is returned when the CPU limit is invalid
	ErrInvalidCPULimit = errors.New("invalid CPU limit (must be 0-100)")

	// ErrInvalidMemoryLimit is returned when the memory limit is invalid
	ErrInvalidMemoryLimit = errors.New("invalid memory limit (must be >= 0)")

	// ErrInvalidProcessLimit is returned when the process limit is invalid
	ErrInvalidProcessLimit = errors.New("invalid process limit (must be >= 0)")

	// ErrInvalidTimeout is returned when the timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be >= 0)")

	// ErrSandboxNotRunning is returned when the sandbox is not running
	ErrSandboxNotRunning = errors.New("sandbox is not running")

	// ErrSandboxAlreadyRunning is returned when the sandbox is already running
	ErrSandboxAlreadyRunning = errors.New("sandbox is already running")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrEmptyCommand is returned when no command is given
	ErrEmptyCommand = errors.New("command is required")

	// ErrInvalidWorkingDir is returned when the working directory is not an existing absolute directory
	ErrInvalidWorkingDir = errors.New("invalid working directory")

	// ErrUnsafeSnapshotPath is returned when a snapshot path escapes the snapshot root
	ErrUnsafeSnapshotPath = errors.New("snapshot path escapes the snapshot root")

	// ErrExecutorClosed is returned when a closed executor is used
	ErrExecutorClosed = errors.New("snapshot executor is closed")

	// ErrHostRuntimeNotAllowed is returned when the host runtime is selected without allow_host
	ErrHostRuntimeNotAllowed = errors.New("host runtime runs commands unisolated; set sandbox.allow_host to use it")

	// ErrReadOnlySnapshot is returned when a command tries to write to the snapshot
	ErrReadOnlySnapshot = errors.New("read-only snapshot")

	// ErrUnsupportedCommand is returned when a request is not a shell script
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrDockerImageRequired is returned when Docker runtime is enabled without an image
	ErrDockerImageRequired = errors.New("docker image is required for docker runtime")
)
