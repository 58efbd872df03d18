// Package bootstrap builds the source text a master sends to a freshly
// spawned worker process (spec §4.6's Bootstrap contract), grounded on
// gateway_bootstrap.py's bootstrap_populate/bootstrap_exec: the master
// owns the worker's code, not the target host, so nothing beyond a tiny
// pre-installed interpreter stub needs to live on the remote side.
//
// Where the original embeds literal Python source, WorkerSource embeds Go
// source (worker_main.go.txt) that a yaegi interpreter on the far end
// evaluates. The embedded source is a thin two-line script: import the
// fake "execfabric/worker" package the boot stub exposes, and call its
// Bootstrap entry point with this gateway's id and execmodel name spliced
// in. Keeping the glue this thin means execfabric-boot itself never needs
// rebuilding when the worker-side wiring changes — only the master binary
// that generates this source does.
package bootstrap

import (
	"encoding/base64"
	_ "embed"
	"strings"
)

//go:embed worker_main.go.txt
var workerMainTemplate string

// WorkerSource returns the full bootstrap payload for one worker: a single
// base64-encoded line (so it can be read without a framing protocol, by a
// plain ReadLine off the child's stdin) terminated by '\n'. id and
// modelName are spliced into the embedded template before encoding.
func WorkerSource(id, modelName string) string {
	src := strings.ReplaceAll(workerMainTemplate, "__EXECFABRIC_ID__", id)
	src = strings.ReplaceAll(src, "__EXECFABRIC_MODEL__", modelName)
	return base64.StdEncoding.EncodeToString([]byte(src)) + "\n"
}
