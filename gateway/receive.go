package gateway

import (
	"io"

	"github.com/execfabric/execfabric/codec"
	"github.com/execfabric/execfabric/protocol"
	"github.com/execfabric/execfabric/xerr"
)

// receiveLoop is the Gateway's single receiver goroutine, grounded on
// BaseGateway._thread_receiver: read one frame, decode its payload per
// MsgCode, dispatch, repeat until EOF or a decode error, then tear
// everything down (spec §4.6).
func (g *Gateway) receiveLoop() {
	var endErr error
	for {
		msg, err := g.framer.ReadMessage()
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				endErr = err
			}
			break
		}
		if err := g.dispatch(msg); err != nil {
			g.log.WLogf("gateway %s: dispatch error on channel %d: %v", g.id, msg.ChannelID, err)
		}
	}
	g.channels.FinishedReceiving()
	if g.group != nil {
		g.group.NotifyGatewayDone(g.id, endErr)
	}
	g.StartShutdown(endErr)
}

func (g *Gateway) dispatch(msg protocol.Message) error {
	switch msg.Code {
	case protocol.MsgStatus:
		return g.replyStatus(msg.ChannelID)
	case protocol.MsgChannelExec:
		return g.handleChannelExec(msg)
	case protocol.MsgChannelNew:
		return g.handleChannelNew(msg)
	case protocol.MsgChannelData:
		return g.handleChannelData(msg)
	case protocol.MsgChannelClose:
		g.channels.LocalClose(msg.ChannelID, nil, false)
		return nil
	case protocol.MsgChannelCloseError:
		return g.handleChannelCloseError(msg)
	case protocol.MsgChannelLastMessage:
		g.channels.LocalClose(msg.ChannelID, nil, true)
		return nil
	case protocol.MsgGatewayTerminate:
		g.model.Stop()
		return nil
	case protocol.MsgReconfigure:
		return g.handleReconfigure(msg)
	default:
		return xerr.NewLoadError("unknown msgcode %v", msg.Code)
	}
}

func (g *Gateway) handleChannelExec(msg protocol.Message) error {
	value, err := codec.DecodeWithCoercion(msg.Payload, g.stringCoercion())
	if err != nil {
		return err
	}
	source, callname, kwargs, err := decodeExecTuple(value)
	if err != nil {
		return err
	}
	ch, err := g.channels.NewWithID(msg.ChannelID)
	if err != nil {
		return err
	}
	select {
	case g.execQueue <- execTask{ch: ch, source: buildExecSource(source, callname, kwargs)}:
	default:
		return ch.Close("exec queue full")
	}
	return nil
}

func (g *Gateway) handleChannelNew(msg protocol.Message) error {
	value, err := codec.DecodeWithCoercion(msg.Payload, g.stringCoercion())
	if err != nil {
		return err
	}
	newID, ok := value.(int)
	if !ok {
		return xerr.NewLoadError("CHANNEL_NEW payload must be an int, got %T", value)
	}
	newCh, err := g.channels.NewWithID(uint32(newID))
	if err != nil {
		return err
	}
	g.channels.LocalReceive(msg.ChannelID, newCh)
	return nil
}

func (g *Gateway) handleChannelData(msg protocol.Message) error {
	value, err := codec.DecodeWithCoercion(msg.Payload, g.stringCoercion())
	if err != nil {
		return err
	}
	g.channels.LocalReceive(msg.ChannelID, value)
	return nil
}

func (g *Gateway) handleChannelCloseError(msg protocol.Message) error {
	value, err := codec.DecodeWithCoercion(msg.Payload, g.stringCoercion())
	if err != nil {
		return err
	}
	text, ok := value.(string)
	if !ok {
		return xerr.NewLoadError("CHANNEL_CLOSE_ERROR payload must be text, got %T", value)
	}
	g.channels.LocalClose(msg.ChannelID, xerr.NewRemoteError(text), false)
	return nil
}

// handleReconfigure applies an incoming RECONFIGURE's string-coercion
// toggles to this gateway's own decode policy (spec §4.2, §9): it controls
// how this side's codec.Decode calls map the TEXT/TEXT2 opcodes to local
// text/bytes types, per the peer's Reconfigure call.
func (g *Gateway) handleReconfigure(msg protocol.Message) error {
	value, err := codec.DecodeWithCoercion(msg.Payload, g.stringCoercion())
	if err != nil {
		return err
	}
	opts, ok := value.(map[interface{}]interface{})
	if !ok {
		return xerr.NewLoadError("RECONFIGURE payload must be a dict, got %T", value)
	}
	g.coercionMu.Lock()
	if v, ok := opts["py2str_as_py3str"].(bool); ok {
		g.coercion.Py2StrAsPy3Str = v
	}
	if v, ok := opts["py3str_as_py2str"].(bool); ok {
		g.coercion.Py3StrAsPy2Str = v
	}
	g.coercionMu.Unlock()
	return nil
}

// replyStatus answers a STATUS request synthetically without
// materializing a peer-side Channel object for channelid (spec §4.6,
// SUPPLEMENTAL FEATURES): counters are computed from live state only.
func (g *Gateway) replyStatus(channelid uint32) error {
	active := g.channels.Channels()
	numExecuting := 0
	for _, ch := range active {
		if ch.IsExecuting() {
			numExecuting++
		}
	}
	d := map[interface{}]interface{}{
		"receiving":    true,
		"execqsize":    g.execQueueDepth(),
		"numchannels":  len(active),
		"numexecuting": numExecuting,
	}
	payload, err := codec.Encode(d)
	if err != nil {
		return err
	}
	return g.SendMessage(protocol.NewMessage(protocol.MsgChannelData, channelid, payload))
}
