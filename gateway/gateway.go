// Package gateway implements the master and worker endpoint state
// machine (spec §4.6, C6), grounded on BaseGateway/SlaveGateway in
// original_source/execnet's gateway_base.py: one receiver goroutine per
// gateway decoding frames and dispatching by MsgCode, a single exec queue
// feeding an execmodel.Model, and explicit two-tier shutdown (exit() then
// transport Kill()) adapted from the teacher's share/shutdown_helper.go.
package gateway

import (
	"sync"

	"github.com/execfabric/execfabric/channel"
	"github.com/execfabric/execfabric/codec"
	"github.com/execfabric/execfabric/execmodel"
	"github.com/execfabric/execfabric/lifecycle"
	"github.com/execfabric/execfabric/logging"
	"github.com/execfabric/execfabric/protocol"
	"github.com/execfabric/execfabric/transport"
)

// Role distinguishes the two ends of a gateway pair, which determines
// channel id parity (spec §3) and which side runs the exec dispatcher.
type Role int

const (
	RoleMaster Role = iota
	RoleWorker
)

// Gateway is one endpoint of a bootstrapped byte-duplex connection.
type Gateway struct {
	lifecycle.Helper

	id       string
	role     Role
	log      logging.Logger
	duplex   transport.ByteDuplex
	framer   *protocol.Framer
	channels *channel.Factory
	model    execmodel.Model

	writeMu sync.Mutex

	coercionMu sync.Mutex
	coercion   codec.StringCoercion

	execQueue     chan execTask
	execQueueOnce sync.Once
	group         Terminator
}

// Terminator is the subset of Group a Gateway reports its death to, kept
// narrow so gateway does not import group (group imports gateway).
type Terminator interface {
	NotifyGatewayDone(id string, err error)
}

// execTask binds a newly-opened channel to the source it should run (spec
// §4.6's CHANNEL_EXEC dispatch).
type execTask struct {
	ch     *channel.Channel
	source string
}

// Config collects what New needs to build a Gateway.
type Config struct {
	ID        string
	Role      Role
	Log       logging.Logger
	Duplex    transport.ByteDuplex
	ModelName string
	Group     Terminator
}

// New constructs a Gateway over an already-bootstrapped duplex and starts
// its receiver goroutine. Channel ids start at 1 for RoleMaster and 2 for
// RoleWorker (spec §3's parity rule).
func New(cfg Config) (*Gateway, error) {
	model, err := execmodel.New(cfg.ModelName)
	if err != nil {
		return nil, err
	}
	startID := uint32(1)
	if cfg.Role == RoleWorker {
		startID = 2
	}
	log := cfg.Log
	if log == nil {
		log = logging.New(cfg.ID, logging.LevelFromEnv())
	}

	g := &Gateway{
		id:        cfg.ID,
		role:      cfg.Role,
		log:       log,
		duplex:    cfg.Duplex,
		model:     model,
		execQueue: make(chan execTask, 64),
		group:     cfg.Group,
	}
	g.framer = protocol.NewFramer(cfg.Duplex, cfg.Duplex)
	g.channels = channel.NewFactory(g, startID)
	g.Helper.Init(g)

	go g.receiveLoop()
	if cfg.Role == RoleWorker {
		go g.serveExecQueue()
	}
	return g, nil
}

// ID returns the gateway's identifier (its XSpec-derived name, spec §3).
func (g *Gateway) ID() string { return g.id }

// Log returns this gateway's logger, forked per-channel/per-operation by
// callers that need more specific prefixes.
func (g *Gateway) Log() logging.Logger { return g.log }

// SendMessage writes m to the wire, serialized against concurrent callers
// (channel package's Sender interface).
func (g *Gateway) SendMessage(m protocol.Message) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.framer.WriteMessage(m)
}

// NewChannel allocates a fresh Channel for the caller to use with
// CHANNEL_EXEC/remote_exec.
func (g *Gateway) NewChannel() (*channel.Channel, error) {
	return g.channels.New()
}

// stringCoercion returns the codec string-coercion policy currently in
// effect for decoding this gateway's incoming payloads (spec §4.2, §9),
// last set by a peer's Reconfigure call.
func (g *Gateway) stringCoercion() codec.StringCoercion {
	g.coercionMu.Lock()
	defer g.coercionMu.Unlock()
	return g.coercion
}

// Reconfigure sends a RECONFIGURE message setting the peer's codec
// string-coercion policy for the TEXT/TEXT2 opcodes (spec §4.2, §9's
// string-coercion legacy).
func (g *Gateway) Reconfigure(py2StrAsPy3Str, py3StrAsPy2Str bool) error {
	opts := map[interface{}]interface{}{
		"py2str_as_py3str": py2StrAsPy3Str,
		"py3str_as_py2str": py3StrAsPy2Str,
	}
	payload, err := codec.Encode(opts)
	if err != nil {
		return err
	}
	return g.SendMessage(protocol.NewMessage(protocol.MsgReconfigure, 0, payload))
}

// RemoteExec allocates a channel and sends source to the peer for
// evaluation there, grounded on Gateway.remote_exec (spec §4.2): the
// returned Channel carries whatever the remote side Sends back, and
// closes once remote evaluation finishes or fails.
func (g *Gateway) RemoteExec(source string) (*channel.Channel, error) {
	return g.remoteExec(source, "", nil)
}

// RemoteExecCall is RemoteExec plus a callname/kwargs pair appended after
// source, mirroring the original's remote_exec(source, callname, **kwargs)
// partial-dispatch form (spec §9).
func (g *Gateway) RemoteExecCall(source, callname string, kwargs map[string]interface{}) (*channel.Channel, error) {
	return g.remoteExec(source, callname, kwargs)
}

func (g *Gateway) remoteExec(source, callname string, kwargs map[string]interface{}) (*channel.Channel, error) {
	ch, err := g.channels.New()
	if err != nil {
		return nil, err
	}
	tup := codec.Tuple{source}
	if callname != "" {
		tup = append(tup, callname)
		m := make(map[interface{}]interface{}, len(kwargs))
		for k, v := range kwargs {
			m[k] = v
		}
		tup = append(tup, m)
	}
	payload, err := codec.Encode(tup)
	if err != nil {
		return nil, err
	}
	if err := g.SendMessage(protocol.NewMessage(protocol.MsgChannelExec, ch.ID(), payload)); err != nil {
		return nil, err
	}
	return ch, nil
}

// HandleOnceShutdown implements lifecycle.OnceShutdownHandler: stop taking
// new exec tasks and close the write half so the peer observes EOF. It does
// not wait for the transport's child process (if any) to exit.
func (g *Gateway) HandleOnceShutdown(completionErr error) error {
	g.model.Stop()
	if g.role == RoleWorker {
		g.execQueueOnce.Do(func() { close(g.execQueue) })
	}
	_ = g.duplex.CloseWrite()
	return completionErr
}

// Kill force-terminates the underlying transport (e.g. SIGKILL on a
// popen/ssh child), the fallback Group.terminate reaches for when a
// gateway does not shut down within its timeout (spec §4.7, §5).
func (g *Gateway) Kill() error {
	return g.duplex.Kill()
}

// Exit sends GATEWAY_TERMINATE and starts graceful shutdown (spec §5).
func (g *Gateway) Exit() error {
	err := g.SendMessage(protocol.Empty(protocol.MsgGatewayTerminate, 0))
	g.StartShutdown(err)
	return err
}
