// Command execfabric is a minimal master-side driver: it spawns one worker
// over a Popen-style child process, bootstraps a Gateway against it, runs
// a single remote_exec, and prints whatever the worker channel Sends back
// until the channel closes. It exists to exercise the gateway/channel
// stack end to end, not as a general-purpose CLI (spec's CLI-parsing
// Non-goal).
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/execfabric/execfabric/gateway"
	"github.com/execfabric/execfabric/logging"
	"github.com/execfabric/execfabric/transport"
	"github.com/execfabric/execfabric/xerr"
)

var (
	resultPrefix = color.New(color.FgGreen).SprintFunc()("<-")
	errorPrefix  = color.New(color.FgRed, color.Bold).SprintFunc()("!!")
)

var help = `
  Usage: execfabric [options] <source>

  <source> is Go source text to run on the worker, with a Channel bound
  into scope for sending results back (e.g. "Channel.Send(1 + 1)").

  Options:

    --id, Identifies this gateway in log lines (defaults to "worker0").

    --boot, Path to the execfabric-boot binary on the target (defaults to
    "execfabric-boot", found via PATH).

    --execmodel, One of thread, main_thread_only, eventlet, gevent
    (defaults to thread).

    --v, Enable debug logging.

`

func main() {
	id := flag.String("id", "worker0", "")
	boot := flag.String("boot", "execfabric-boot", "")
	execmodel := flag.String("execmodel", "thread", "")
	verbose := flag.Bool("v", false, "")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
	}
	source := args[0]

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(*id, level)

	duplex, err := transport.NewPipeTransport(logger, []string{*boot})
	if err != nil {
		log.Fatalf("spawning %s: %v", *boot, err)
	}

	g, err := gateway.BootstrapPipe(logger, *id, duplex, *execmodel, false)
	if err != nil {
		log.Fatalf("bootstrapping %s: %v", *id, err)
	}

	ch, err := g.RemoteExec(source)
	if err != nil {
		log.Fatalf("remote_exec: %v", err)
	}

	for {
		v, err := ch.Receive(0)
		if err != nil {
			var closed *xerr.ChannelClosed
			if errors.As(err, &closed) {
				break
			}
			var remote *xerr.RemoteError
			if errors.As(err, &remote) {
				fmt.Fprintln(os.Stderr, errorPrefix, strings.TrimRight(remote.Formatted, "\n"))
				break
			}
			log.Fatalf("receive: %v", err)
		}
		fmt.Println(resultPrefix, v)
	}

	if err := g.Exit(); err != nil {
		logger.WLogf("exit: %v", err)
	}
	_ = g.WaitShutdown()
}
