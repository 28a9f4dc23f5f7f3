package channel

import (
	"encoding/json"
	"io"
	"os/exec"
	"sync"

	"github.com/discoverlab/enginekit/errors"
)

// processHandle realizes Handle over a spawned subprocess. Packets travel
// as newline-delimited JSON frames on the child's stdin/stdout, so the
// worker can run fully sandboxed; port refs are plain strings that the
// frames move across the boundary.
type processHandle struct {
	*endpoint

	writeMu sync.Mutex
	enc     *json.Encoder

	cmd    *exec.Cmd
	closer io.Closer
}

var _ Handle = (*processHandle)(nil)

// SpawnProcess starts cmd with piped stdio and returns the manager-side
// handle. A start failure is a spawn failure: the execution context could
// not be created.
func SpawnProcess(cmd *exec.Cmd, buffer int) (Handle, error) {
	if cmd == nil {
		return nil, errors.New(errors.ErrCodeSpawnFailed, "nil worker command")
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeSpawnFailed, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, errors.WrapWithCode(err, errors.ErrCodeSpawnFailed, "stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, errors.WrapWithCode(err, errors.ErrCodeSpawnFailed, "start worker process")
	}

	h := &processHandle{
		endpoint: newEndpoint(buffer),
		enc:      json.NewEncoder(stdin),
		cmd:      cmd,
		closer:   stdin,
	}
	h.post = h.write
	h.onDispose = h.teardown

	go h.readLoop(stdout)

	return h, nil
}

// InheritedHandle returns the worker-side handle inside the child process,
// over its inherited stdio (or any duplex byte pair).
func InheritedHandle(r io.Reader, w io.Writer, buffer int) Handle {
	h := &processHandle{
		endpoint: newEndpoint(buffer),
		enc:      json.NewEncoder(w),
	}
	h.post = h.write
	if c, ok := w.(io.Closer); ok {
		h.closer = c
	}
	h.onDispose = h.teardown

	go h.readLoop(r)

	return h
}

func (h *processHandle) write(p Packet) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.closed.Load() {
		return errClosed()
	}
	if err := h.enc.Encode(p); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeTransportClosed, "write frame")
	}
	return nil
}

// readLoop decodes inbound frames until EOF or disposal. A broken stream
// after disposal is expected and not reported.
func (h *processHandle) readLoop(r io.Reader) {
	defer h.finish()

	dec := json.NewDecoder(r)
	for {
		var p Packet
		if err := dec.Decode(&p); err != nil {
			if h.closed.Load() || err == io.EOF {
				return
			}
			h.reportErr(errors.WrapWithCode(err, errors.ErrCodeTransportClosed, "read frame"))
			return
		}
		select {
		case <-h.done:
			return
		default:
		}
		h.dispatch(p)
	}
}

func (h *processHandle) teardown() {
	if h.closer != nil {
		_ = h.closer.Close()
	}
	if h.cmd != nil && h.cmd.Process != nil {
		// Closing stdin asks the worker loop to exit; reap without blocking
		// disposal on a stuck child.
		go func() {
			_ = h.cmd.Wait()
		}()
	}
}

// Dispose shuts the handle down and releases the child process pipes.
func (h *processHandle) Dispose() error {
	return h.dispose()
}
