package generators

import (
	"errors"

	"github.com/clinkgo/clink/internal/match"
	"github.com/clinkgo/clink/internal/script"
)

// ScriptPriority runs ahead of Filesystem: a loaded script's own match
// generator function gets first refusal on every word, falling back to
// filesystem completion when it declines or no script is loaded.
const ScriptPriority = 10

// generateFunc is the fixed name a loaded script exposes its generator
// callback under.
const generateFunc = "generate"

// Script adapts whichever script.Evaluator a script.Registry currently
// selects into a match.Generator, so a registered Lua or Starlark
// backend can contribute matches without the pipeline or lineeditor
// knowing scripting exists. With the registry's default NullEvaluator
// selected it declines every word instead of faulting.
type Script struct {
	registry *script.Registry
}

// NewScript builds a Script generator backed by registry.
func NewScript(registry *script.Registry) *Script {
	return &Script{registry: registry}
}

// Generate implements match.Generator.
func (s *Script) Generate(ctx match.Context) (match.Result, error) {
	eval := s.registry.Current()
	if eval == nil || eval.Name() == "null" {
		return match.None(), nil
	}

	result, err := eval.Call(generateFunc, script.String(ctx.Line), script.Number(float64(ctx.Cursor)), script.String(ctx.Word))
	if err != nil {
		if errors.Is(err, script.ErrScriptFault) {
			// Any ErrScriptFault, whether no generate function is
			// registered or the script itself failed, is a plain
			// decline: it is not returned as a pipeline fault and so
			// is not reported through the pipeline's OnFault.
			return match.None(), nil
		}
		return match.Result{}, err
	}
	if result.Kind != script.KindTable {
		return match.None(), nil
	}

	matches := make([]match.Match, 0, len(result.Table))
	for text, meta := range result.Table {
		m := match.Match{Text: text}
		if meta.Kind == script.KindTable {
			if dir, ok := meta.Table["dir"]; ok && dir.Kind == script.KindBool && dir.Bool {
				m.Meta.IsDirectory = true
				m.Meta.Suffix = match.DirectorySuffix
			}
			if disp, ok := meta.Table["display"]; ok && disp.Kind == script.KindString {
				m.Meta.DisplayOverride = disp.Str
			}
		}
		matches = append(matches, m)
	}
	if len(matches) == 0 {
		return match.None(), nil
	}
	return match.Result{Matches: matches}, nil
}
