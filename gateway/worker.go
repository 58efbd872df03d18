package gateway

import (
	"fmt"
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/execfabric/execfabric/channel"
	"github.com/execfabric/execfabric/codec"
	"github.com/execfabric/execfabric/xerr"
)

// serveExecQueue is the worker-side exec loop, grounded on
// SlaveGateway.serve/executetask: pull one task at a time off the queue
// and hand it to the configured execmodel.Model, which decides how many
// may run concurrently (spec §4.4, §4.6).
func (g *Gateway) serveExecQueue() {
	for task := range g.execQueue {
		t := task
		err := g.model.Spawn(func() { g.runTask(t) })
		if err != nil {
			t.ch.Close(err.Error())
		}
	}
}

func (g *Gateway) execQueueDepth() int { return len(g.execQueue) }

// runTask interprets task.source with yaegi, exposing a `Channel` symbol
// bound to task.ch (spec §4.6's "globals include a channel bound to the
// master's handle"). The executing flag is cleared before the channel is
// closed, so the final CHANNEL_CLOSE or CHANNEL_CLOSE_ERROR is sent. Go is compiled, so literally "exec'ing streamed
// source" (the original's compile()+exec(co, loc)) is done here via a
// real Go interpreter rather than the host program's own compiler — each
// task gets its own *interp.Interpreter so concurrent tasks under the
// threaded execmodel never share interpreter state (spec §9's Open
// Question about concurrency is resolved this way, see DESIGN.md).
func (g *Gateway) runTask(t execTask) {
	t.ch.SetExecuting(true)
	finish := func(errText string) {
		t.ch.SetExecuting(false)
		t.ch.Close(errText)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		finish(err.Error())
		return
	}
	if err := i.Use(execFabricSymbols()); err != nil {
		finish(err.Error())
		return
	}
	if err := i.Use(interp.Exports{
		"execworker/execworker": map[string]reflect.Value{
			"Channel": reflect.ValueOf(t.ch),
		},
	}); err != nil {
		finish(err.Error())
		return
	}

	_, err := i.Eval(`import . "execworker/execworker"`)
	if err != nil {
		finish(err.Error())
		return
	}

	defer func() {
		if r := recover(); r != nil {
			finish(fmt.Sprintf("panic during remote_exec: %v", r))
		}
	}()

	if _, err := i.Eval(t.source); err != nil {
		finish(err.Error())
		return
	}
	finish("")
}

// execFabricSymbols exposes the channel package's public surface to
// interpreted worker source, so remote code can do
// channel.Channel.Send(...)/Receive(0) against the bound Channel without
// the interpreted code needing its own transport/codec knowledge.
func execFabricSymbols() interp.Exports {
	return interp.Exports{
		"github.com/execfabric/execfabric/channel/channel": map[string]reflect.Value{
			"Channel": reflect.ValueOf((*channel.Channel)(nil)),
		},
	}
}

// decodeExecTuple unpacks a CHANNEL_EXEC payload's (source, callname,
// kwargs) tuple (spec §4.2). callname and kwargs are optional: a bare
// remote_exec(source) call encodes just a 1-tuple.
func decodeExecTuple(v interface{}) (source, callname string, kwargs map[string]interface{}, err error) {
	tup, ok := v.(codec.Tuple)
	if !ok {
		return "", "", nil, xerr.NewLoadError("CHANNEL_EXEC payload must be a tuple, got %T", v)
	}
	if len(tup) < 1 {
		return "", "", nil, xerr.NewLoadError("CHANNEL_EXEC payload tuple is empty")
	}
	source, ok = tup[0].(string)
	if !ok {
		return "", "", nil, xerr.NewLoadError("CHANNEL_EXEC source must be text, got %T", tup[0])
	}
	if len(tup) > 1 {
		if s, ok := tup[1].(string); ok {
			callname = s
		}
	}
	if len(tup) > 2 {
		if m, ok := tup[2].(map[interface{}]interface{}); ok {
			kwargs = make(map[string]interface{}, len(m))
			for k, val := range m {
				if ks, ok := k.(string); ok {
					kwargs[ks] = val
				}
			}
		}
	}
	return source, callname, kwargs, nil
}

// buildExecSource appends a call to callname with kwargs after source, if
// callname is set — the Go-idiomatic analogue of the original's partial
// dispatch (spec §9). A bare remote_exec has no callname and source runs
// as-is.
func buildExecSource(source, callname string, kwargs map[string]interface{}) string {
	if callname == "" {
		return source
	}
	return fmt.Sprintf("%s\n%s(Channel, %#v)\n", source, callname, kwargs)
}
