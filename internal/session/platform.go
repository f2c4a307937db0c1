package session

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/fileops"
	"github.com/debugstub/ds2agent/internal/interfaces"
	"github.com/debugstub/ds2agent/internal/native"
	"github.com/debugstub/ds2agent/internal/process"
	"golang.org/x/sys/unix"
)

// SpawnedSessionServer is implemented by the root package's Session type:
// it opens a fresh channel over conn and drives a DebugDelegate attached
// to proc until the debugger disconnects. Passed in rather than imported,
// since internal/session cannot depend on the root package.
type SpawnedSessionServer interface {
	ServeSpawned(conn net.Conn, proc *process.Process)
}

// PlatformDelegate serves a connection that has not yet attached to any
// inferior: it launches processes on request (qLaunchGDBServer) and hands
// each one off to a freshly spawned debug session listening on its own
// port, the lldb platform-mode workflow. It shares the handshake and
// file-op command groups with DebugDelegate via CommonDelegate.
type PlatformDelegate struct {
	CommonDelegate

	Observer interfaces.Observer
	Server   SpawnedSessionServer

	mu      sync.Mutex
	env     []string
	workdir string
	stdin   string
	stdout  string
	stderr  string

	lastPID      int
	lastExitCode int
	launched     bool
}

// NewPlatformDelegate constructs a platform-mode delegate. server may be
// nil in tests that only exercise argument parsing, in which case
// qLaunchGDBServer fails with Unsupported rather than panicking.
func NewPlatformDelegate(files *fileops.Table, observer interfaces.Observer, server SpawnedSessionServer) *PlatformDelegate {
	return &PlatformDelegate{
		CommonDelegate: CommonDelegate{Files: files},
		Observer:       observer,
		Server:         server,
	}
}

// Register wires the handshake, file-op and platform command groups.
func (d *PlatformDelegate) Register(r *Registry) {
	d.RegisterHandshake(r)
	d.RegisterFileOps(r)
	r.Prefix("qLaunchGDBServer", d.qLaunchGDBServer)
	r.Exact("qKillSpawnedProcess", d.qKillSpawnedProcess)
	r.Exact("qLaunchSuccess", d.qLaunchSuccess)
	r.Exact("qsProcessInfo", d.qsProcessInfo)
	r.Prefix("QSetSTDIN:", d.setStdio(&d.stdin, "QSetSTDIN:"))
	r.Prefix("QSetSTDOUT:", d.setStdio(&d.stdout, "QSetSTDOUT:"))
	r.Prefix("QSetSTDERR:", d.setStdio(&d.stderr, "QSetSTDERR:"))
	r.Prefix("QSetWorkingDir:", d.qSetWorkingDir)
	r.Prefix("QEnvironment:", d.qEnvironment)
	r.Prefix("QEnvironmentHexEncoded:", d.qEnvironmentHexEncoded)
}

func (d *PlatformDelegate) setStdio(field *string, prefix string) CommandFunc {
	return func(payload string) ([]byte, error) {
		path, err := decodeHexString(strings.TrimPrefix(payload, prefix))
		if err != nil {
			return errReply(err), nil
		}
		d.mu.Lock()
		*field = path
		d.mu.Unlock()
		return okReply, nil
	}
}

func (d *PlatformDelegate) qSetWorkingDir(payload string) ([]byte, error) {
	path, err := decodeHexString(strings.TrimPrefix(payload, "QSetWorkingDir:"))
	if err != nil {
		return errReply(err), nil
	}
	d.mu.Lock()
	d.workdir = path
	d.mu.Unlock()
	return okReply, nil
}

// qEnvironment accepts the legacy plain-text "K=V" form.
func (d *PlatformDelegate) qEnvironment(payload string) ([]byte, error) {
	kv := strings.TrimPrefix(payload, "QEnvironment:")
	d.mu.Lock()
	d.env = append(d.env, kv)
	d.mu.Unlock()
	return okReply, nil
}

// qEnvironmentHexEncoded accepts a hex-encoded "K=V" pair, used when the
// value may contain characters the wire format can't carry literally.
func (d *PlatformDelegate) qEnvironmentHexEncoded(payload string) ([]byte, error) {
	kv, err := decodeHexString(strings.TrimPrefix(payload, "QEnvironmentHexEncoded:"))
	if err != nil {
		return errReply(err), nil
	}
	d.mu.Lock()
	d.env = append(d.env, kv)
	d.mu.Unlock()
	return okReply, nil
}

// qLaunchGDBServer parses "qLaunchGDBServer;<hex-encoded-argv0> <hex-args...>"
// and launches that program under trace, listening on a new ephemeral
// port for the debugger to connect to. It replies "pid:<hex>;port:<hex>;".
func (d *PlatformDelegate) qLaunchGDBServer(payload string) ([]byte, error) {
	rest := strings.TrimPrefix(payload, "qLaunchGDBServer")
	rest = strings.TrimPrefix(rest, ";")

	argv, err := parseLaunchArgv(rest)
	if err != nil {
		return errReply(err), nil
	}
	if len(argv) == 0 {
		return errReply(agenterr.New("qLaunchGDBServer", agenterr.InvalidArgument, "no program given")), nil
	}
	if d.Server == nil {
		return errReply(agenterr.New("qLaunchGDBServer", agenterr.Unsupported, "no session server to hand the process to")), nil
	}

	d.mu.Lock()
	env, workdir, stdin, stdout, stderr := d.env, d.workdir, d.stdin, d.stdout, d.stderr
	d.mu.Unlock()

	proc, err := LaunchTraced(argv, env, workdir, stdin, stdout, stderr)
	if err != nil {
		return errReply(err), nil
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errReply(agenterr.Wrap("qLaunchGDBServer", err)), nil
	}
	port := ln.Addr().(*net.TCPAddr).Port

	d.mu.Lock()
	d.lastPID = proc.PID
	d.launched = true
	d.mu.Unlock()

	go d.acceptOne(ln, proc)

	return []byte(fmt.Sprintf("pid:%x;port:%x;", proc.PID, port)), nil
}

func (d *PlatformDelegate) acceptOne(ln net.Listener, proc *process.Process) {
	defer ln.Close()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	if d.Server != nil {
		d.Server.ServeSpawned(conn, proc)
	} else {
		conn.Close()
	}
}

func (d *PlatformDelegate) qKillSpawnedProcess(string) ([]byte, error) {
	d.mu.Lock()
	pid := d.lastPID
	d.mu.Unlock()
	if pid == 0 {
		return errReply(agenterr.New("qKillSpawnedProcess", agenterr.NotFound, "no spawned process")), nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return errReply(agenterr.Wrap("qKillSpawnedProcess", err)), nil
	}
	return okReply, nil
}

func (d *PlatformDelegate) qLaunchSuccess(string) ([]byte, error) {
	d.mu.Lock()
	launched := d.launched
	d.mu.Unlock()
	if !launched {
		return []byte("E08"), nil
	}
	return okReply, nil
}

func (d *PlatformDelegate) qsProcessInfo(string) ([]byte, error) {
	d.mu.Lock()
	pid := d.lastPID
	d.mu.Unlock()
	if pid == 0 {
		return errReply(agenterr.New("qsProcessInfo", agenterr.NotFound, "no spawned process")), nil
	}
	fields := []string{
		fmt.Sprintf("pid:%x", pid),
		"triple:" + encodeHexString("riscv64-unknown-linux-gnu"),
	}
	return []byte(strings.Join(fields, ";") + ";"), nil
}

// parseLaunchArgv splits a space-separated sequence of hex-encoded argv
// entries, the wire form qLaunchGDBServer and vRun both use.
func parseLaunchArgv(rest string) ([]string, error) {
	if rest == "" {
		return nil, nil
	}
	parts := strings.Fields(rest)
	argv := make([]string, 0, len(parts))
	for _, p := range parts {
		s, err := decodeHexString(p)
		if err != nil {
			return nil, err
		}
		argv = append(argv, s)
	}
	return argv, nil
}

// LaunchTraced forks argv[0] with PTRACE_TRACEME already armed by the
// runtime's exec fork path (syscall.SysProcAttr.Ptrace), waits for the
// post-execve trap, arms PTRACE_O_EXITKILL so the child never outlives
// its tracer, and wraps the result as a process.Process with no hardware
// watchpoint slots (this agent's RISC-V targets have none).
func LaunchTraced(argv []string, env []string, workdir, stdinPath, stdoutPath, stderrPath string) (*process.Process, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workdir
	if len(env) > 0 {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if f, err := openRedirect(stdinPath, os.O_RDONLY); err == nil && f != nil {
		cmd.Stdin = f
	}
	if f, err := openRedirect(stdoutPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC); err == nil && f != nil {
		cmd.Stdout = f
	}
	if f, err := openRedirect(stderrPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC); err == nil && f != nil {
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return nil, agenterr.Wrap("launch", err)
	}
	pid := cmd.Process.Pid

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return nil, agenterr.Wrap("launch", err)
	}

	ctrl := native.NewControl(nil)
	if err := ctrl.SetOptions(pid, unix.PTRACE_O_EXITKILL); err != nil {
		return nil, err
	}

	return process.New(pid, false, ctrl, 0), nil
}

func openRedirect(path string, flag int) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, flag, 0o644)
}
