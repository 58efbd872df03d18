// Package group implements the multi-gateway coordination layer (spec
// §4.7, C7), grounded on original_source/execnet's multi.py Group and
// xspec.py XSpec: an insertion-ordered set of gateways addressed by a
// compact string spec, with fan-out exec and two-tier termination.
package group

import (
	"strings"

	"github.com/execfabric/execfabric/xerr"
)

// XSpec is a parsed endpoint specification string of the form
// "k1=v1//k2=v2//...". A key with no "=value" is boolean-true. Unknown
// keys are kept in Extra rather than rejected (xspec.py's
// __getattr__-returns-None-for-unknown-keys behavior, spec's SUPPLEMENTAL
// FEATURES).
type XSpec struct {
	Raw string

	Popen       bool
	SSH         string
	Socket      string
	VagrantSSH  string
	Python      string
	Chdir       string
	Nice        string
	Env         map[string]string
	NoWriteByte bool
	SSHConfig   string
	ID          string
	ExecModel   string
	InstallVia  string

	Extra map[string]string
}

// ParseXSpec parses s per spec §6's syntax: keys may not repeat and may
// not start with "_".
func ParseXSpec(s string) (*XSpec, error) {
	x := &XSpec{Raw: s, Env: map[string]string{}, Extra: map[string]string{}}
	seen := map[string]bool{}

	if s == "" {
		return x, nil
	}
	for _, field := range strings.Split(s, "//") {
		if field == "" {
			continue
		}
		key := field
		value := ""
		if idx := strings.IndexByte(field, '='); idx >= 0 {
			key = field[:idx]
			value = field[idx+1:]
		}
		if strings.HasPrefix(key, "_") {
			return nil, xerr.NewLoadError("xspec: key %q may not start with underscore", key)
		}
		if strings.HasPrefix(key, "env:") {
			name := key[len("env:"):]
			x.Env[name] = value
			continue
		}
		if seen[key] {
			return nil, xerr.NewLoadError("xspec: duplicate key %q", key)
		}
		seen[key] = true

		switch key {
		case "popen":
			x.Popen = true
		case "ssh":
			x.SSH = value
		case "socket":
			x.Socket = value
		case "vagrant_ssh":
			x.VagrantSSH = value
		case "python":
			x.Python = value
		case "chdir":
			x.Chdir = value
		case "nice":
			x.Nice = value
		case "dont_write_bytecode":
			x.NoWriteByte = true
		case "ssh_config":
			x.SSHConfig = value
		case "id":
			x.ID = value
		case "execmodel":
			x.ExecModel = value
		case "installvia":
			x.InstallVia = value
		default:
			x.Extra[key] = value
		}
	}
	return x, nil
}

// PythonArgv splits Python (if set) on whitespace the way xspec.py's
// popen_bootstrapline does to build argv for a local subprocess spec.
func (x *XSpec) PythonArgv() []string {
	if x.Python == "" {
		return nil
	}
	return strings.Fields(x.Python)
}

// WantsChdirOrEnv reports whether makegateway needs to issue the
// post-bootstrap synchronous setup exec (spec §4.7's chdir/nice/env:*
// clause).
func (x *XSpec) WantsChdirOrEnv() bool {
	return x.Chdir != "" || x.Nice != "" || len(x.Env) > 0
}
