// Package elevation supervises the privileged companion process and
// implements the message catalogue the specification defines for the
// two planes that run over it: a control pipe for synchronous RPC, and a
// cache pipe running cache operations in parallel with execute.
//
// Process supervision (spawn, own the stdio handles, capture exit
// status) is grounded on quarry/runtime/executor.go's ExecutorManager:
// same Start/Wait/Kill shape, os/exec.Cmd with piped stdio. The
// difference is what rides over those pipes — here it's the framed
// message protocol in package pipe, not a one-shot JSON stdin payload and
// an IPC frame stream.
package elevation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"syscall"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/pipe"
)

// MessageType enumerates the opcode catalogue from the specification.
// Control-plane and cache-plane opcodes share one numbering space since
// each plane runs over its own Conn; the type still disambiguates
// logging and routing within a plane.
type MessageType uint32

const (
	_ MessageType = iota

	// Control-plane.
	MsgApplyInitialize
	MsgApplyUninitialize
	MsgSessionBegin
	MsgSessionResume
	MsgSessionEnd
	MsgSaveState
	MsgProcessDependentRegistration
	MsgExecuteExePackage
	MsgExecuteMsiPackage
	MsgExecuteMspPackage
	MsgExecuteMsuPackage
	MsgExecutePackageProvider
	MsgExecutePackageDependency
	MsgLoadCompatiblePackage
	MsgCleanPackage
	MsgLaunchApprovedExe

	// Cache-plane.
	MsgLayoutBundle
	MsgCacheOrLayoutContainerOrPayload
	MsgCacheCleanup

	// Callbacks (child -> parent).
	MsgExecuteProgress
	MsgExecuteError
	MsgExecuteMsiMessage
	MsgExecuteFilesInUse
	MsgLaunchApprovedExeProcessID
	MsgLog

	// Control.
	MsgTerminate
)

// Result is the u32 HRESULT-shaped outcome every callback returns. The
// specification normalizes two HRESULT values into named outcomes that
// the originating execute surfaces through its restart output.
type Result uint32

const (
	ResultOK               Result = 0
	ResultRebootRequired    Result = 3010 // matches Burn's ERROR_SUCCESS_REBOOT_REQUIRED family
	ResultRebootInitiated   Result = 1641
	ResultFailed           Result = 0xffffffff
)

// ToError converts a Result into the engine's error taxonomy, or nil for
// ResultOK.
func (r Result) ToError(op string) error {
	switch r {
	case ResultOK:
		return nil
	case ResultRebootRequired:
		return bferr.New(bferr.RebootRequired, op)
	case ResultRebootInitiated:
		return bferr.New(bferr.RebootInitiated, op)
	default:
		return bferr.New(bferr.ChildFailed, op)
	}
}

// Companion supervises the elevated companion process and owns its two
// framed connections.
type Companion struct {
	cmd    *exec.Cmd
	Control *pipe.Conn
	Cache   *pipe.Conn
}

// Launch starts the companion binary at path, uses the child's stdout and
// stdin as the control connection (the named-pipe transport itself is an
// OS-specific detail outside this package's scope; any io.ReadWriteCloser
// satisfies Conn), verifies the handshake secret on it, and returns once
// the control plane is authenticated. The cache plane is not connected
// here: Companion.Cache stays nil until AttachCachePlane is called.
func Launch(ctx context.Context, path string, args []string, secret [16]byte) (*Companion, error) {
	cmd := exec.CommandContext(ctx, path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, bferr.Wrap(bferr.IO, "elevation.Launch", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, bferr.Wrap(bferr.IO, "elevation.Launch", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, bferr.Wrap(bferr.IO, "elevation.Launch", err)
	}

	rwc := &stdioConn{r: stdout, w: stdin}
	if err := pipe.VerifySecret(rwc, secret); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	return &Companion{
		cmd:     cmd,
		Control: pipe.NewConn(rwc),
	}, nil
}

// stdioConn adapts a child process's stdout/stdin pair to
// io.ReadWriteCloser for a single control-plane Conn. A production
// companion would open a second OS pipe for the cache plane; that pipe's
// platform-specific construction (a named pipe on Windows, a unix domain
// socket or fifo elsewhere) is intentionally left to the caller, which is
// why Companion.Cache starts nil and is wired in by whoever constructs
// the second transport.
type stdioConn struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (s *stdioConn) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdioConn) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdioConn) Close() error {
	werr := s.w.Close()
	rerr := s.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// AttachCachePlane wires an already-connected transport (e.g. a named
// pipe or unix socket dialed by the caller) as the companion's cache
// plane, verifying the handshake secret before returning.
func (c *Companion) AttachCachePlane(conn net.Conn, secret [16]byte) error {
	if err := pipe.VerifySecret(conn, secret); err != nil {
		return err
	}
	c.Cache = pipe.NewConn(conn)
	return nil
}

// Terminate sends MsgTerminate on the control plane and waits for the
// child to exit, reporting its exit code.
func (c *Companion) Terminate() (int, error) {
	if c.Control != nil {
		_ = c.Control.WriteFrame(pipe.Frame{Type: uint32(MsgTerminate)})
	}
	return c.wait()
}

// Kill forcibly terminates the companion process without a graceful
// terminate handshake, used when the control plane itself is unusable.
func (c *Companion) Kill() error {
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

func (c *Companion) wait() (int, error) {
	err := c.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus(), nil
		}
		return -1, nil
	}
	return -1, bferr.Wrap(bferr.IO, "elevation.wait", err)
}

// String renders a MessageType for logging.
func (t MessageType) String() string {
	return fmt.Sprintf("msg(%d)", uint32(t))
}
