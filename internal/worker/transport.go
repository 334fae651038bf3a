package worker

import (
	"fmt"
	"io"
	"os/exec"
)

// Transport provides the byte channel to a worker. Startable more than
// once: the client restarts it after a crash.
type Transport interface {
	// Start launches the worker and returns its input and output streams.
	Start() (io.Writer, io.Reader, error)
	// Stop terminates the worker if it is running.
	Stop() error
}

// SubprocessTransport runs the worker as a child process and speaks over
// its stdin/stdout pipes.
type SubprocessTransport struct {
	Command string
	Args    []string

	cmd *exec.Cmd
}

// Start spawns the worker process.
func (t *SubprocessTransport) Start() (io.Writer, io.Reader, error) {
	cmd := exec.Command(t.Command, t.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start worker: %w", err)
	}
	t.cmd = cmd

	// Reap the process so a crash closes stdout and unblocks the reader.
	go func() { _ = cmd.Wait() }()

	return stdin, stdout, nil
}

// Stop kills the worker process.
func (t *SubprocessTransport) Stop() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Kill()
}
