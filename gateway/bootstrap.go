package gateway

import (
	"io"

	"github.com/execfabric/execfabric/bootstrap"
	"github.com/execfabric/execfabric/logging"
	"github.com/execfabric/execfabric/transport"
	"github.com/execfabric/execfabric/xerr"
)

// readAck reads exactly the one-byte readiness marker directly off duplex,
// without any buffering reader in front — a bufio.Reader would risk
// pre-fetching bytes that belong to the first real protocol frame the
// worker sends right after its ACK.
func readAck(duplex transport.ByteDuplex) error {
	var b [1]byte
	if _, err := io.ReadFull(duplex, b[:]); err != nil {
		return err
	}
	if b[0] != '1' {
		return xerr.NewLoadError("unexpected bootstrap ack byte %q", b[0])
	}
	return nil
}

// BootstrapPipe drives the master-side handshake over a freshly spawned
// child (Popen or SSH-as-subprocess), grounded on gateway_bootstrap.py's
// bootstrap_popen/bootstrap_ssh: write the worker source as one unframed,
// newline-terminated base64 line, then block for the single-byte readiness ACK ('1') before a
// Gateway is constructed over the same duplex (spec §4.6's Bootstrap).
//
// Where the original streams literal Python source, this sends the
// embedded Go boot-stub source (bootstrap.WorkerSource) for a yaegi
// interpreter on the far end to run — see package bootstrap for why.
func BootstrapPipe(log logging.Logger, id string, duplex transport.ByteDuplex, modelName string, isSSH bool) (*Gateway, error) {
	src := bootstrap.WorkerSource(id, modelName)
	if _, err := duplex.Write([]byte(src)); err != nil {
		if isSSH {
			if code, ok := transport.WaitExitStatus(duplex.Wait()); ok && code == transport.SSHHostNotFoundExitCode {
				return nil, xerr.NewHostNotFound(id)
			}
		}
		return nil, err
	}

	if err := readAck(duplex); err != nil {
		if isSSH {
			if code, ok := transport.WaitExitStatus(duplex.Wait()); ok && code == transport.SSHHostNotFoundExitCode {
				return nil, xerr.NewHostNotFound(id)
			}
		}
		return nil, xerr.NewLoadError("bootstrap: did not receive readiness ACK from %s", id)
	}

	return New(Config{ID: id, Role: RoleMaster, Log: log, Duplex: duplex, ModelName: modelName})
}

// BootstrapSocket drives the handshake for a Socket transport: unlike
// Pipe/SSH there is no source to stream (the peer process is already
// running execfabric-boot listening on its own accepted connection), so
// this just waits for the same readiness ACK before constructing the
// Gateway (spec §4.6, §9's socket variant of bootstrap_socket sends an
// id line instead of source since the remote side is pre-installed).
func BootstrapSocket(log logging.Logger, id string, duplex transport.ByteDuplex, modelName string) (*Gateway, error) {
	if err := readAck(duplex); err != nil {
		return nil, xerr.NewLoadError("bootstrap: did not receive readiness ACK from %s", id)
	}
	return New(Config{ID: id, Role: RoleMaster, Log: log, Duplex: duplex, ModelName: modelName})
}
