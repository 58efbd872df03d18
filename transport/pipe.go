package transport

import (
	"bufio"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/andrew-d/go-termutil"

	"github.com/execfabric/execfabric/logging"
	"github.com/execfabric/execfabric/xerr"
)

// PipeTransport wraps the stdin/stdout of a spawned child process: a local
// worker for Popen-style bootstrap, or an SSH client for SSH bootstrap
// (spec §4.3 treats the two identically once the child is running). Its
// child-process shape (exec.Command, piped stdin/stdout) is grounded on
// c6ai-hlf-easy/node/peer.go's PeerNode; Kill's SIGTERM-then-timeout-then-
// SIGKILL escalation goes further than that file's plain Signal+Wait,
// since Group.Terminate (spec §4.7, §5) needs a bounded force-kill
// fallback that peer.go's caller never required.
type PipeTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stats  *ConnStats
	log    logging.Logger

	mu     sync.Mutex
	killed bool
}

// NewPipeTransport starts argv (argv[0] is the executable) and wraps its
// stdio as a ByteDuplex. If the master's own stdin (fd 0) is a terminal, a
// debug-level note is logged, since a child that echoes prompts to its real
// stdout (rather than the redirected pipe) would corrupt the frame stream
// (spec §4.3's "reassigns stdin/stdout to non-interactive sinks").
func NewPipeTransport(log logging.Logger, argv []string) (*PipeTransport, error) {
	if len(argv) == 0 {
		return nil, xerr.NewDumpError("empty argv for pipe transport")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if termutil.Isatty(0) {
		log.DLog("pipe transport: controlling stdin is a tty; verify the child does not echo prompts to its real stdout")
	}
	return &PipeTransport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 64*1024),
		stats:  NewConnStats(),
		log:    log,
	}, nil
}

// Stats returns the byte-accounting counters for this transport.
func (p *PipeTransport) Stats() *ConnStats { return p.stats }

func (p *PipeTransport) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	p.stats.AddReceived(n)
	return n, err
}

func (p *PipeTransport) Write(b []byte) (int, error) {
	n, err := p.stdin.Write(b)
	p.stats.AddSent(n)
	return n, err
}

// CloseRead is a no-op: os/exec's stdout pipe has no independent read-side
// shutdown short of killing the child.
func (p *PipeTransport) CloseRead() error { return nil }

// CloseWrite closes stdin, signalling EOF to the child's stdin reader
// (spec §5's "exit() ... closes the write half").
func (p *PipeTransport) CloseWrite() error { return p.stdin.Close() }

// Wait blocks until the child exits.
func (p *PipeTransport) Wait() error { return p.cmd.Wait() }

// Kill implements the two-tier terminate-then-kill policy: SIGTERM first,
// escalating to SIGKILL if the process has not exited within a 3-second
// grace period.
func (p *PipeTransport) Kill() error {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return nil
	}
	p.killed = true
	p.mu.Unlock()

	if p.cmd.Process == nil {
		return nil
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case <-done:
		return nil
	case <-time.After(3 * time.Second):
		return p.cmd.Process.Kill()
	}
}

// SSHArgs builds the argv for an SSH-bootstrapped pipe transport
// (spec §4.3): `ssh -C [-F config] host <remoteCommand>`.
func SSHArgs(host, config, remoteCommand string) []string {
	args := []string{"ssh", "-C"}
	if config != "" {
		args = append(args, "-F", config)
	}
	args = append(args, host, remoteCommand)
	return args
}

// VagrantSSHArgs builds the argv for a vagrant_ssh-bootstrapped pipe
// transport (spec §6): `vagrant ssh <name> -- <remoteCommand>`.
func VagrantSSHArgs(name, remoteCommand string) []string {
	return []string{"vagrant", "ssh", name, "--", remoteCommand}
}

// WaitExitStatus extracts a process exit code from an *exec.ExitError,
// returning ok=false for any other error shape (including nil).
func WaitExitStatus(err error) (code int, ok bool) {
	if err == nil {
		return 0, false
	}
	exitErr, isExit := err.(*exec.ExitError)
	if !isExit {
		return 0, false
	}
	status, isWait := exitErr.Sys().(syscall.WaitStatus)
	if !isWait {
		return 0, false
	}
	return status.ExitStatus(), true
}

// SSHHostNotFoundExitCode is the conventional exit status an SSH client
// returns when the host could not be resolved or connected (spec §4.3:
// "EOF during bootstrap when the SSH process returns exit status 255 is
// surfaced as HostNotFound").
const SSHHostNotFoundExitCode = 255
