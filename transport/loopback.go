package transport

import (
	"github.com/prep/socketpair"

	"github.com/execfabric/execfabric/logging"
)

// NewLoopbackPair returns two connected SocketTransports with no network
// or subprocess involved, for tests that need a real Gateway pair without
// a real transport (spec §8's "no fakes" testing intent, adapted from the
// teacher's in-process test doubles). Grounded on prep/socketpair, which
// wraps the socketpair(2) syscall to hand back two connected net.Conns.
func NewLoopbackPair(log logging.Logger) (a, b *SocketTransport, err error) {
	ca, cb, err := socketpair.New("unix")
	if err != nil {
		return nil, nil, err
	}
	return NewSocketTransport(log.Fork("loopback-a"), ca), NewSocketTransport(log.Fork("loopback-b"), cb), nil
}
