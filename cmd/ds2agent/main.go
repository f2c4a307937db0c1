package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	agent "github.com/debugstub/ds2agent"
	"github.com/debugstub/ds2agent/internal/channel"
	"github.com/debugstub/ds2agent/internal/fileops"
	"github.com/debugstub/ds2agent/internal/interfaces"
	"github.com/debugstub/ds2agent/internal/logging"
	"github.com/debugstub/ds2agent/internal/native"
	"github.com/debugstub/ds2agent/internal/process"
	"github.com/debugstub/ds2agent/internal/session"
	"github.com/debugstub/ds2agent/internal/uring"
	"golang.org/x/sys/unix"
)

// sharedFlags are accepted by every subcommand.
type sharedFlags struct {
	logFile    string
	debug      bool
	remoteDbg  bool
	noColors   bool
	daemonize  bool
	setsid     bool
}

// gdbserverFlags are only meaningful for the "g" subcommand.
type gdbserverFlags struct {
	setEnv        stringList
	unsetEnv      stringList
	attach        string
	gdbCompat     bool
	namedPipe     string
	reverseConn   bool
	fd            int
	once          bool
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ds2agent <g|p|s|v>... [options] [host]:port")
		return 1
	}

	switch args[0][0] {
	case 'v':
		fmt.Println("ds2agent (GDB remote serial protocol debug stub)")
		return 0
	case 'g':
		return runGdbserver(args[1:])
	case 'p':
		return runPlatform(args[1:])
	case 's':
		return runSlave(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "ds2agent: unknown subcommand %q\n", args[0])
		return 1
	}
}

func bindShared(fs *flag.FlagSet, f *sharedFlags) {
	fs.StringVar(&f.logFile, "log-file", "", "log file path")
	fs.StringVar(&f.logFile, "o", "", "log file path (shorthand)")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&f.debug, "d", false, "enable debug logging (shorthand)")
	fs.BoolVar(&f.remoteDbg, "remote-debug", false, "log every wire packet")
	fs.BoolVar(&f.remoteDbg, "D", false, "log every wire packet (shorthand)")
	fs.BoolVar(&f.noColors, "no-colors", false, "disable colored output")
	fs.BoolVar(&f.noColors, "n", false, "disable colored output (shorthand)")
	fs.BoolVar(&f.daemonize, "daemonize", false, "accepted; has no effect (the agent does not fork)")
	fs.BoolVar(&f.daemonize, "f", false, "accepted; has no effect (shorthand)")
	fs.BoolVar(&f.setsid, "setsid", false, "accepted; has no effect (no new session is started)")
	fs.BoolVar(&f.setsid, "S", false, "accepted; has no effect (shorthand)")
}

func buildLogger(f *sharedFlags) *logging.Logger {
	cfg := logging.DefaultConfig()
	if f.debug || f.remoteDbg {
		cfg.Level = logging.LevelDebug
	}
	if f.logFile != "" {
		out, err := os.OpenFile(f.logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			cfg.Output = out
		}
	}
	logger := logging.NewLogger(cfg)
	logging.SetDefault(logger)
	return logger
}

// runGdbserver implements the "g" subcommand: attach to or spawn an
// inferior and serve one DebugDelegate session over the chosen transport.
func runGdbserver(args []string) int {
	fs := flag.NewFlagSet("gdbserver", flag.ExitOnError)
	var shared sharedFlags
	var gdb gdbserverFlags
	bindShared(fs, &shared)
	fs.Var(&gdb.setEnv, "set-env", "K=V environment override (repeatable)")
	fs.Var(&gdb.setEnv, "e", "K=V environment override (shorthand, repeatable)")
	fs.Var(&gdb.unsetEnv, "unset-env", "K environment removal (repeatable)")
	fs.Var(&gdb.unsetEnv, "E", "K environment removal (shorthand, repeatable)")
	fs.StringVar(&gdb.attach, "attach", "", "numeric PID to attach to (process names are rejected)")
	fs.StringVar(&gdb.attach, "a", "", "numeric PID to attach to (shorthand)")
	fs.BoolVar(&gdb.gdbCompat, "gdb-compat", false, "GDB compatibility mode")
	fs.BoolVar(&gdb.gdbCompat, "g", false, "GDB compatibility mode (shorthand)")
	fs.StringVar(&gdb.namedPipe, "named-pipe", "", "FIFO path to report the chosen port on")
	fs.StringVar(&gdb.namedPipe, "N", "", "FIFO path (shorthand)")
	fs.BoolVar(&gdb.reverseConn, "reverse-connect", false, "dial out instead of listening")
	fs.BoolVar(&gdb.reverseConn, "R", false, "dial out instead of listening (shorthand)")
	fs.IntVar(&gdb.fd, "fd", -1, "serve over an inherited file descriptor")
	fs.IntVar(&gdb.fd, "F", -1, "serve over an inherited file descriptor (shorthand)")
	fs.BoolVar(&gdb.once, "once", true, "exit after the first connection closes")
	fs.BoolVar(&gdb.once, "O", true, "exit after the first connection closes (shorthand)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := buildLogger(&shared)
	maybeDaemonize(&shared)

	stream, err := acquireStream(fs, &gdb, logger)
	if err != nil {
		logger.Error("failed to acquire transport", "error", err)
		return 1
	}

	proc, err := attachOrSpawn(&gdb, fs.Args())
	if err != nil {
		logger.Error("failed to attach inferior", "error", err)
		return 1
	}

	files := newFileTable(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := agent.NewDebugSession(ctx, stream, proc, files, logger, nil)
	if err := sess.Run(ctx); err != nil {
		logger.Error("session ended with error", "error", err)
		return 1
	}
	return 0
}

// runPlatform implements the "p" subcommand: serve the platform (spawner)
// delegate, which launches inferiors on demand via qLaunchGDBServer.
func runPlatform(args []string) int {
	fs := flag.NewFlagSet("platform", flag.ExitOnError)
	var shared sharedFlags
	bindShared(fs, &shared)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := buildLogger(&shared)
	maybeDaemonize(&shared)

	addr := "tcp://127.0.0.1:0"
	if fs.NArg() > 0 {
		addr = endpointToTransport(fs.Arg(0))
	}
	ln, err := channel.Listen(addr)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		return 1
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		fmt.Fprintf(os.Stderr, "Listening on port %d\n", tcpAddr.Port)
	}

	files := newFileTable(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Error("accept failed", "error", err)
			return 1
		}
		sess := agent.NewPlatformSession(ctx, conn, files, logger, nil, nil)
		go func() {
			if err := sess.Run(ctx); err != nil {
				logger.Debug("platform session ended", "error", err)
			}
		}()
	}
}

// runSlave implements the "s" subcommand: it parses the shared flags and
// runs the remaining arguments as a gdbserver invocation. Nothing in this
// program re-execs itself with this subcommand.
func runSlave(args []string) int {
	fs := flag.NewFlagSet("slave", flag.ExitOnError)
	var shared sharedFlags
	bindShared(fs, &shared)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return runGdbserver(fs.Args())
}

// maybeDaemonize accepts --daemonize and --setsid without acting on
// them: it neither forks nor calls setsid(2), so the agent stays in the
// foreground in the session it was started in.
func maybeDaemonize(f *sharedFlags) {
	if f.setsid {
		// --setsid is accepted and has no effect.
	}
}

// acquireStream resolves the positional [host]:port / --fd / named-pipe
// spec into a duplex byte stream, honoring --reverse-connect and --once.
func acquireStream(fs *flag.FlagSet, gdb *gdbserverFlags, logger *logging.Logger) (interfaces.ByteStream, error) {
	if gdb.fd >= 0 {
		return channel.FromFD(gdb.fd)
	}

	if fs.NArg() == 0 {
		return nil, fmt.Errorf("ds2agent: missing [host]:port argument")
	}
	if channel.IsCharDevicePath(fs.Arg(0)) {
		return channel.OpenCharDevice(fs.Arg(0))
	}
	endpoint := endpointToTransport(fs.Arg(0))

	if gdb.reverseConn {
		return channel.Dial(endpoint)
	}

	ln, err := channel.Listen(endpoint)
	if err != nil {
		return nil, err
	}
	if gdb.namedPipe != "" {
		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			if err := os.WriteFile(gdb.namedPipe, []byte(strconv.Itoa(tcpAddr.Port)), 0o600); err != nil {
				ln.Close()
				return nil, err
			}
		}
	}
	if gdb.gdbCompat {
		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			fmt.Fprintf(os.Stderr, "Listening on port %d\n", tcpAddr.Port)
		}
	}
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	if gdb.once {
		ln.Close()
	}
	return conn, nil
}

// endpointToTransport turns a bare "[host]:port" positional argument
// into the tcp:// scheme channel.Dial/Listen expect, passing anything
// that already names a scheme or a character device straight through.
func endpointToTransport(spec string) string {
	if strings.Contains(spec, "://") {
		return spec
	}
	if channel.IsCharDevicePath(spec) {
		return spec
	}
	return "tcp://" + spec
}

func newFileTable(logger *logging.Logger) *fileops.Table {
	ring, err := uring.New(64, logger)
	if err != nil {
		logger.Warn("io_uring unavailable, vFile commands will fail", "error", err)
		return fileops.NewTable(nil)
	}
	return fileops.NewTable(ring)
}

// attachOrSpawn either ptrace-attaches to an existing PID (numeric
// --attach) or launches argv under trace (remaining positional args).
func attachOrSpawn(gdb *gdbserverFlags, argv []string) (*process.Process, error) {
	if gdb.attach != "" {
		pid, err := strconv.Atoi(gdb.attach)
		if err != nil {
			// TODO: resolve a process name to a pid via /proc scan; only
			// numeric PIDs are supported today.
			return nil, fmt.Errorf("ds2agent: --attach by name is not yet supported")
		}
		ctrl := native.NewControl(nil)
		if err := ctrl.Attach(pid); err != nil {
			return nil, err
		}
		var ws unix.WaitStatus
		if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
			return nil, err
		}
		return process.New(pid, true, ctrl, 0), nil
	}

	if len(argv) == 0 {
		return nil, fmt.Errorf("ds2agent: no --attach target and no program to launch")
	}
	return session.LaunchTraced(argv, applyEnvOverrides(gdb), "", "", "", "")
}

func applyEnvOverrides(gdb *gdbserverFlags) []string {
	env := os.Environ()
	if len(gdb.unsetEnv) > 0 {
		filtered := env[:0]
		for _, kv := range env {
			key, _, _ := strings.Cut(kv, "=")
			drop := false
			for _, u := range gdb.unsetEnv {
				if u == key {
					drop = true
					break
				}
			}
			if !drop {
				filtered = append(filtered, kv)
			}
		}
		env = filtered
	}
	env = append(env, gdb.setEnv...)
	return env
}
