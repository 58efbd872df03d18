// Command execfabric-boot is the tiny, stable stub a target host needs
// pre-installed (or deployed once via scp/rsync) to accept execfabric
// workers. It owns no worker logic itself: it is a yaegi host that reads
// one line of master-supplied source off stdin, evaluates it, and lets
// that source call back into the real compiled Bootstrap it exposes
// (grounded on gateway_bootstrap.py's remote_bootstrap_gateway, spec
// §4.6). Rebuilding a worker's wiring only ever requires rebuilding the
// master binary, never redeploying this stub.
package main

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"syscall"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/execfabric/execfabric/bootstrap"
	"github.com/execfabric/execfabric/gateway"
	"github.com/execfabric/execfabric/logging"
	"github.com/execfabric/execfabric/transport"
)

// stdioDuplex wraps a pair of *os.File duplicated off the process's
// original stdin/stdout before those fds were repointed at /dev/null (see
// newStdioDuplex), so the frame stream keeps using the real pipe/ssh
// connection regardless of what remote_exec'd code later does to
// os.Stdin/os.Stdout.
type stdioDuplex struct {
	in  *os.File
	out *os.File
}

// newStdioDuplex duplicates the process's current stdin/stdout fds, then
// repoints the originals (fd 0 and fd 1, and the os.Stdin/os.Stdout
// globals) at /dev/null. A CHANNEL_EXEC task is evaluated with the full
// standard library in scope (gateway/worker.go), so arbitrary worker code
// can call fmt.Println or write os.Stdout directly; without this
// redirection that write would land on the same fds the framer is reading
// and writing, corrupting the live frame stream (spec §4.3/§4.6: the
// worker "reassigns its own stdin/stdout to non-interactive sinks so that
// user code cannot corrupt the frame stream").
func newStdioDuplex() (*stdioDuplex, error) {
	inFd, err := syscall.Dup(int(os.Stdin.Fd()))
	if err != nil {
		return nil, err
	}
	outFd, err := syscall.Dup(int(os.Stdout.Fd()))
	if err != nil {
		return nil, err
	}
	in := os.NewFile(uintptr(inFd), "execfabric-frame-stdin")
	out := os.NewFile(uintptr(outFd), "execfabric-frame-stdout")

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer devNull.Close()
	if err := syscall.Dup2(int(devNull.Fd()), int(os.Stdin.Fd())); err != nil {
		return nil, err
	}
	if err := syscall.Dup2(int(devNull.Fd()), int(os.Stdout.Fd())); err != nil {
		return nil, err
	}

	return &stdioDuplex{in: in, out: out}, nil
}

func (d *stdioDuplex) Read(p []byte) (int, error)  { return d.in.Read(p) }
func (d *stdioDuplex) Write(p []byte) (int, error) { return d.out.Write(p) }
func (d *stdioDuplex) CloseRead() error             { return nil }
func (d *stdioDuplex) CloseWrite() error            { return d.out.Close() }
func (d *stdioDuplex) Wait() error                  { return nil }
func (d *stdioDuplex) Kill() error                  { return nil }

var _ transport.ByteDuplex = (*stdioDuplex)(nil)

// bootstrapWorker is exposed to the interpreted glue source as
// execfabric/worker.Bootstrap. It redirects the process's own stdin/stdout
// to non-interactive sinks, writes the readiness ACK over the duplicated
// originals, brings up a worker-role Gateway over them, and blocks until
// the gateway is done.
func bootstrapWorker(id, modelName string) error {
	duplex, err := newStdioDuplex()
	if err != nil {
		return err
	}
	if _, err := duplex.Write([]byte{'1'}); err != nil {
		return err
	}
	log := logging.New(id, logging.LevelFromEnv())
	g, err := gateway.New(gateway.Config{
		ID:        id,
		Role:      gateway.RoleWorker,
		Log:       log,
		Duplex:    duplex,
		ModelName: modelName,
	})
	if err != nil {
		return err
	}
	return g.WaitShutdown()
}

func main() {
	source, err := bootstrap.ReadSource(os.Stdin)
	if err != nil && err != io.EOF {
		fmt.Fprintln(os.Stderr, "execfabric-boot: reading bootstrap source:", err)
		os.Exit(1)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		fmt.Fprintln(os.Stderr, "execfabric-boot:", err)
		os.Exit(1)
	}
	if err := i.Use(interp.Exports{
		"execfabric/worker/worker": {
			"Bootstrap": reflect.ValueOf(bootstrapWorker),
		},
	}); err != nil {
		fmt.Fprintln(os.Stderr, "execfabric-boot:", err)
		os.Exit(1)
	}

	if _, err := i.Eval(source); err != nil {
		fmt.Fprintln(os.Stderr, "execfabric-boot: evaluating worker source:", err)
		os.Exit(1)
	}
}
