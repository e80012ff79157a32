package condition

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/synapse/orchestrator/common/models"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Evaluator evaluates edge predicates using CEL (Common Expression
// Language). A broken predicate must not activate downstream work, so
// every evaluation failure yields false: parse errors, unbound
// identifiers, type mismatches and unsupported dialects alike.
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
	log   Logger
}

// NewEvaluator creates a new condition evaluator with caching
func NewEvaluator(log Logger) *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
		log:   log,
	}
}

// EvaluateCondition decides whether an edge fires for the given source
// result document. A nil condition is the unconditional edge: true.
func (e *Evaluator) EvaluateCondition(cond *models.Condition, context map[string]interface{}) bool {
	if cond == nil {
		return true
	}

	if cond.Evaluator != models.EvaluatorCEL {
		e.log.Warn("unsupported condition evaluator", "evaluator", cond.Evaluator)
		return false
	}

	evalContext := buildEvalContext(context)

	result, err := e.evaluateCEL(cond.Expression, evalContext)
	if err != nil {
		e.log.Warn("condition evaluation failed",
			"expression", cond.Expression,
			"error", err)
		return false
	}

	return result
}

// buildEvalContext copies the document and, when it does not itself
// carry a top-level "result" key, binds the whole document as "result"
// too. Both `result.field` and `field` resolve that way.
func buildEvalContext(context map[string]interface{}) map[string]interface{} {
	evalContext := make(map[string]interface{}, len(context)+1)
	for k, v := range context {
		evalContext[k] = v
	}
	if _, ok := evalContext["result"]; !ok && len(evalContext) > 0 {
		evalContext["result"] = context
	}
	return evalContext
}

// evaluateCEL compiles (or reuses) and runs one expression against the
// evaluation context. The program cache is keyed by expression plus
// the sorted variable set, since the CEL environment declares one
// variable per top-level context key.
func (e *Evaluator) evaluateCEL(expr string, evalContext map[string]interface{}) (bool, error) {
	key := cacheKey(expr, evalContext)

	e.mu.RLock()
	prg, exists := e.cache[key]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = e.compileCEL(expr, evalContext)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[key] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(evalContext)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

// compileCEL compiles a CEL expression with one dyn variable per
// top-level context key
func (e *Evaluator) compileCEL(expr string, evalContext map[string]interface{}) (cel.Program, error) {
	opts := make([]cel.EnvOption, 0, len(evalContext))
	for name := range evalContext {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

func cacheKey(expr string, evalContext map[string]interface{}) string {
	keys := make([]string, 0, len(evalContext))
	for k := range evalContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(expr)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
	}
	return b.String()
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
