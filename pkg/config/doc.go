// Package config loads semsync's desired-state documents and its runtime
// settings.
//
// # Desired state
//
// A Loader reads one document describing a project and its keys,
// repositories, inventories, secrets, environments and templates. Four
// encodings are accepted, chosen by file extension:
//
//   - .yaml / .yml, decoded with gopkg.in/yaml.v3
//   - .json
//   - .cue, compiled with cuelang.org/go (let clauses and comprehensions
//     are available)
//   - .star, a Starlark script that sets a global named desired
//
// Whatever the encoding, the document is unified with a built-in CUE
// schema (see SchemaRegistry) so that unknown fields and wrongly typed refs
// are reported with their path, then decoded into engine.DesiredState and
// checked with go-playground/validator. Names must be unique within a kind.
//
//	loader := config.NewLoader(config.WithLoaderLogger(log.Logger))
//	desired, err := loader.Load(ctx, "network.yaml")
//	if err != nil {
//	    var verrs config.ValidationErrors
//	    if errors.As(err, &verrs) { ... }
//	}
//
// A key may name a private_key_file instead of inlining private_key; the
// path is relative to the document.
//
// # Extra vars scripts
//
// EvaluateVars runs a Starlark script for `semsync run --vars-script` and
// returns its extra_vars dict. Scripts can read the environment with
// env(name, default).
//
//	extra_vars = {
//	    "switch_name": env("SWITCH", "sw-01"),
//	    "ports": ["ge-0/0/%d" % i for i in range(4)],
//	}
//
// # Settings
//
// Settings come from, in increasing precedence: defaults, semsync.yaml (or
// --config), SEMSYNC_* environment variables (after .env.local and .env are
// loaded) and command-line flags bound by the CLI.
package config
