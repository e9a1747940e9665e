package script

import "github.com/fcoury/yprox/internal/hook"

// BuildChain appends one unfiltered Hook per script source body to the
// chain, in the order given — scripts apply to every direction and
// every target unless a future config surface adds explicit filters.
// Callers resolve a script to source text before this point, whether it
// came from a TOML `scripts` entry (already a source body) or from a
// --script file path (read from disk by internal/config); BuildChain
// itself never touches the filesystem, matching the original's
// ExecRequest taking a script body directly (original_source/src/
// script/mod.rs). Grounded on the HookBuilder/Chain assembly pattern of
// original_source/src/hooks/{builder,mod}.rs, adapted to build the
// whole chain once at startup rather than incrementally.
func BuildChain(sources []string, worker Worker) hook.Chain {
	chain := make(hook.Chain, 0, len(sources))
	for _, src := range sources {
		chain = append(chain, hook.Hook{Trigger: Trigger(worker, src)})
	}
	return chain
}
