package dataflow

import (
	"encoding/json"
	"strings"

	"github.com/synapse/orchestrator/common/models"
	"github.com/tidwall/gjson"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Mapper projects fields of a source result document into a target
// input document along an edge's data_flow.
type Mapper struct {
	log Logger
}

// NewMapper creates a new data-flow mapper
func NewMapper(log Logger) *Mapper {
	return &Mapper{log: log}
}

// Apply resolves every mapping entry (target_key -> source_expression)
// against the source document. Dotted expressions walk the document;
// a failed walk falls back to the last path segment as a top-level
// key; anything still unresolved binds the literal expression string.
// The literal fallback lets blueprints pin constants into successor
// inputs, but it also masks typos, hence the warning.
func (m *Mapper) Apply(df *models.DataFlow, source map[string]interface{}) map[string]interface{} {
	input := make(map[string]interface{})
	if df == nil || len(df.Mappings) == 0 {
		return input
	}

	// One marshal per application; every dotted walk reads from it
	doc, err := json.Marshal(source)
	if err != nil {
		m.log.Warn("source result not marshalable, dotted paths disabled", "error", err)
		doc = nil
	}

	for targetKey, expr := range df.Mappings {
		input[targetKey] = m.resolve(expr, doc, source)
	}

	return input
}

func (m *Mapper) resolve(expr string, doc []byte, source map[string]interface{}) interface{} {
	if strings.Contains(expr, ".") {
		if doc != nil {
			if res := gjson.GetBytes(doc, expr); res.Exists() {
				return res.Value()
			}
		}

		segments := strings.Split(expr, ".")
		last := segments[len(segments)-1]
		if value, ok := source[last]; ok {
			return value
		}

		m.log.Warn("data-flow expression unresolved, binding literal", "expression", expr)
		return expr
	}

	if value, ok := source[expr]; ok {
		return value
	}

	m.log.Warn("data-flow key missing from source, binding literal", "expression", expr)
	return expr
}
