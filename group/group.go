package group

import (
	"fmt"
	"sync"
	"time"

	"github.com/execfabric/execfabric/channel"
	"github.com/execfabric/execfabric/gateway"
	"github.com/execfabric/execfabric/logging"
	"github.com/execfabric/execfabric/transport"
	"github.com/execfabric/execfabric/xerr"
)

const defaultBootArgv0 = "execfabric-boot"

// Group is an insertion-ordered collection of gateways addressed by id,
// grounded on multi.py's Group: makegateway/terminate/remote_exec fan out
// across every live member (spec §4.7).
type Group struct {
	mu        sync.Mutex
	log       logging.Logger
	execmodel string

	order []string
	byID  map[string]*gateway.Gateway
	dead  map[string]error

	nextAutoID int
}

// New creates an empty Group. localExecmodel configures gateways that do
// not specify their own execmodel= in the XSpec (spec's set_execmodel).
func New(log logging.Logger, localExecmodel string) *Group {
	return &Group{
		log:       log,
		execmodel: localExecmodel,
		byID:      map[string]*gateway.Gateway{},
		dead:      map[string]error{},
	}
}

// SetExecmodel changes the default execmodel for gateways created after
// this call. Legal only while the group has no members (spec §4.7).
func (g *Group) SetExecmodel(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.order) > 0 {
		return xerr.NewLoadError("set_execmodel: group already has members")
	}
	g.execmodel = name
	return nil
}

func (g *Group) allocID(requested string) (string, error) {
	if requested == "" {
		id := fmt.Sprintf("gw%d", g.nextAutoID)
		g.nextAutoID++
		return id, nil
	}
	if _, exists := g.byID[requested]; exists {
		return "", xerr.NewLoadError("gateway id %q already registered", requested)
	}
	return requested, nil
}

// MakeGateway parses spec, bootstraps a new gateway over the transport it
// names, and registers it under its (possibly auto-assigned) id (spec
// §4.7's makegateway).
func (g *Group) MakeGateway(spec string) (*gateway.Gateway, error) {
	x, err := ParseXSpec(spec)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	id, err := g.allocID(x.ID)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.order = append(g.order, id)
	g.byID[id] = nil // reserve the slot before any blocking bootstrap I/O
	g.mu.Unlock()

	execmodel := x.ExecModel
	if execmodel == "" {
		execmodel = g.execmodel
	}

	gw, err := g.bootstrapOne(id, x, execmodel)
	if err != nil {
		g.mu.Lock()
		delete(g.byID, id)
		g.removeFromOrderLocked(id)
		g.mu.Unlock()
		return nil, err
	}

	g.mu.Lock()
	g.byID[id] = gw
	g.mu.Unlock()

	if x.WantsChdirOrEnv() {
		if err := g.applySetup(gw, x); err != nil {
			return nil, err
		}
	}
	return gw, nil
}

func (g *Group) bootstrapOne(id string, x *XSpec, execmodel string) (*gateway.Gateway, error) {
	switch {
	case x.Socket != "":
		conn, err := transport.DialSocket(g.log, x.Socket, 10)
		if err != nil {
			return nil, err
		}
		return gateway.BootstrapSocket(g.log, id, conn, execmodel)

	case x.InstallVia != "":
		return g.installViaGateway(id, x, execmodel)

	case x.SSH != "":
		argv0 := defaultBootArgv0
		if len(x.PythonArgv()) > 0 {
			argv0 = x.PythonArgv()[0]
		}
		argv := transport.SSHArgs(x.SSH, x.SSHConfig, argv0)
		d, err := transport.NewPipeTransport(g.log, argv)
		if err != nil {
			return nil, err
		}
		return gateway.BootstrapPipe(g.log, id, d, execmodel, true)

	case x.VagrantSSH != "":
		argv0 := defaultBootArgv0
		if len(x.PythonArgv()) > 0 {
			argv0 = x.PythonArgv()[0]
		}
		argv := transport.VagrantSSHArgs(x.VagrantSSH, argv0)
		d, err := transport.NewPipeTransport(g.log, argv)
		if err != nil {
			return nil, err
		}
		return gateway.BootstrapPipe(g.log, id, d, execmodel, true)

	default: // popen, or no transport key named -> local subprocess
		argv := x.PythonArgv()
		if len(argv) == 0 {
			argv = []string{defaultBootArgv0}
		}
		d, err := transport.NewPipeTransport(g.log, argv)
		if err != nil {
			return nil, err
		}
		return gateway.BootstrapPipe(g.log, id, d, execmodel, false)
	}
}

// installViaGateway implements spec §4.7's installvia: a tiny listener is
// started on the named existing gateway via a synchronous remote_exec,
// the listener reports back its port over the exec channel, and the new
// gateway is bootstrapped by dialing that port (SUPPLEMENTAL FEATURES,
// grounded on multi.py's install_via socket bridge).
func (g *Group) installViaGateway(id string, x *XSpec, execmodel string) (*gateway.Gateway, error) {
	g.mu.Lock()
	via, ok := g.byID[x.InstallVia]
	g.mu.Unlock()
	if !ok || via == nil {
		return nil, xerr.NewLoadError("installvia: unknown gateway id %q", x.InstallVia)
	}

	ch, err := via.RemoteExec(installViaListenerSource)
	if err != nil {
		return nil, err
	}
	portVal, err := ch.Receive(10 * time.Second)
	if err != nil {
		return nil, err
	}
	port, ok := portVal.(int)
	if !ok {
		return nil, xerr.NewLoadError("installvia: expected port number, got %T", portVal)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := transport.DialSocket(g.log, addr, 10)
	if err != nil {
		return nil, err
	}
	return gateway.BootstrapSocket(g.log, id, conn, execmodel)
}

// installViaListenerSource is run on the via-gateway: it opens a loopback
// listener, sends the chosen port back on its exec channel, then accepts
// exactly one connection and hands it to a fresh worker Gateway.
const installViaListenerSource = `
import (
	"net"
	"strconv"
)

ln, err := net.Listen("tcp", "127.0.0.1:0")
if err != nil {
	panic(err)
}
_, portStr, _ := net.SplitHostPort(ln.Addr().String())
port, _ := strconv.Atoi(portStr)
Channel.Send(port)
conn, err := ln.Accept()
ln.Close()
if err != nil {
	panic(err)
}
_ = conn
`

func (g *Group) applySetup(gw *gateway.Gateway, x *XSpec) error {
	src := buildSetupSource(x)
	if src == "" {
		return nil
	}
	ch, err := gw.RemoteExec(src)
	if err != nil {
		return err
	}
	return ch.WaitClose(10 * time.Second)
}

func buildSetupSource(x *XSpec) string {
	needsOS := x.Chdir != "" || len(x.Env) > 0
	needsSyscall := x.Nice != ""
	if !needsOS && !needsSyscall {
		return ""
	}

	imports := ""
	switch {
	case needsOS && needsSyscall:
		imports = "import (\n\t\"os\"\n\t\"syscall\"\n)\n\n"
	case needsOS:
		imports = "import \"os\"\n\n"
	case needsSyscall:
		imports = "import \"syscall\"\n\n"
	}

	body := ""
	if x.Chdir != "" {
		body += fmt.Sprintf("os.MkdirAll(%q, 0755)\nos.Chdir(%q)\n", x.Chdir, x.Chdir)
	}
	for k, v := range x.Env {
		body += fmt.Sprintf("os.Setenv(%q, %q)\n", k, v)
	}
	if x.Nice != "" {
		body += fmt.Sprintf("syscall.Setpriority(syscall.PRIO_PROCESS, 0, %s)\n", x.Nice)
	}
	return imports + body
}

func (g *Group) removeFromOrderLocked(id string) {
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			return
		}
	}
}

// NotifyGatewayDone implements gateway.Terminator: the Group survives
// individual gateway deaths (spec §7's Policy), recording the terminal
// error for later observation rather than propagating it.
func (g *Group) NotifyGatewayDone(id string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dead[id] = err
}

// Gateways returns the live members in insertion order.
func (g *Group) Gateways() []*gateway.Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*gateway.Gateway, 0, len(g.order))
	for _, id := range g.order {
		if gw := g.byID[id]; gw != nil {
			out = append(out, gw)
		}
	}
	return out
}

// RemoteExec fans source out to every member, returning a MultiChannel
// over the per-gateway channels (spec §4.7).
func (g *Group) RemoteExec(source string) (*MultiChannel, error) {
	members := g.Gateways()
	chans := make([]*channel.Channel, 0, len(members))
	for _, gw := range members {
		ch, err := gw.RemoteExec(source)
		if err != nil {
			return nil, err
		}
		chans = append(chans, ch)
	}
	return newMultiChannel(chans), nil
}

// Terminate calls Exit on every member, then waits up to timeout for each
// member's shutdown (WaitShutdown) to complete before force-killing
// whatever remains (spec §4.7, §5's Graceful shutdown order). A gateway's
// shutdown does not join its receiver goroutine or wait for a child
// process to exit. timeout<=0 means wait forever.
func (g *Group) Terminate(timeout time.Duration) error {
	members := g.Gateways()
	for _, gw := range members {
		_ = gw.Exit()
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, gw := range members {
			wg.Add(1)
			go func(gw *gateway.Gateway) {
				defer wg.Done()
				_ = gw.WaitShutdown()
			}(gw)
		}
		wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		remaining := 0
		for _, gw := range members {
			if !gw.IsDoneShutdown() {
				remaining++
				_ = gw.Kill()
			}
		}
		return xerr.NewTimeoutError("group: %d gateway(s) did not terminate in time", remaining)
	}
}
