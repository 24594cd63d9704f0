package jsonlang

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/jsonls/internal/jsonschema"
)

// ValidationResult accumulates the problems and match statistics of
// validating one node against one schema. The statistics rank competing
// anyOf/oneOf branches.
type ValidationResult struct {
	Problems               []Diagnostic
	PropertiesMatches      int
	PropertiesValueMatches int
	PrimaryValueMatches    int
	EnumValueMatch         bool
	EnumValues             []any

	// Hints are reported with the problems but never rank a branch.
	Hints []Diagnostic

	// ProcessedProperties and ProcessedItems record what any applicator
	// evaluated, for unevaluatedProperties and unevaluatedItems.
	ProcessedProperties map[string]bool
	ProcessedItems      map[int]bool
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{
		ProcessedProperties: map[string]bool{},
		ProcessedItems:      map[int]bool{},
	}
}

// HasProblems reports whether any problem was recorded.
func (r *ValidationResult) HasProblems() bool {
	return len(r.Problems) > 0
}

func (r *ValidationResult) addProblem(node Node, message string) {
	r.Problems = append(r.Problems, Diagnostic{
		Offset:  node.Offset(),
		Length:  node.Length(),
		Message: message,
	})
}

func (r *ValidationResult) merge(other *ValidationResult) {
	r.Problems = append(r.Problems, other.Problems...)
	r.Hints = append(r.Hints, other.Hints...)
	r.PropertiesMatches += other.PropertiesMatches
	r.PropertiesValueMatches += other.PropertiesValueMatches
	r.mergeProcessed(other)
}

func (r *ValidationResult) mergeProcessed(other *ValidationResult) {
	for k := range other.ProcessedProperties {
		r.ProcessedProperties[k] = true
	}
	for i := range other.ProcessedItems {
		r.ProcessedItems[i] = true
	}
}

// mergeEnumValues combines the accepted values of two equally good
// branches that both missed their enum, and rewrites the enum message.
func (r *ValidationResult) mergeEnumValues(other *ValidationResult) {
	if r.EnumValueMatch || other.EnumValueMatch || r.EnumValues == nil || other.EnumValues == nil {
		return
	}
	r.EnumValues = append(append([]any{}, r.EnumValues...), other.EnumValues...)
	for i := range r.Problems {
		if r.Problems[i].Code == EnumValueMismatch {
			r.Problems[i].Message = fmt.Sprintf("Value is not accepted. Valid values: %s.", formatValues(r.EnumValues))
		}
	}
}

func (r *ValidationResult) mergePropertyMatch(property *ValidationResult) {
	r.Problems = append(r.Problems, property.Problems...)
	r.Hints = append(r.Hints, property.Hints...)
	r.PropertiesMatches++
	if property.EnumValueMatch || !property.HasProblems() && property.PropertiesMatches > 0 {
		r.PropertiesValueMatches++
	}
	if property.EnumValueMatch && len(property.EnumValues) == 1 {
		r.PrimaryValueMatches++
	}
}

// Compare ranks r against other: positive when r is the better match.
// A result without problems beats one with problems; then an enum match,
// then more primary-value, property-value and property matches win.
func (r *ValidationResult) Compare(other *ValidationResult) int {
	if r.HasProblems() != other.HasProblems() {
		if r.HasProblems() {
			return -1
		}
		return 1
	}
	if r.EnumValueMatch != other.EnumValueMatch {
		if other.EnumValueMatch {
			return -1
		}
		return 1
	}
	if r.PrimaryValueMatches != other.PrimaryValueMatches {
		return r.PrimaryValueMatches - other.PrimaryValueMatches
	}
	if r.PropertiesValueMatches != other.PropertiesValueMatches {
		return r.PropertiesValueMatches - other.PropertiesValueMatches
	}
	return r.PropertiesMatches - other.PropertiesMatches
}

// MatchingSchema is a schema the validator applied to a node. Inverted is
// set for schemas reached through `not`.
type MatchingSchema struct {
	Node     Node
	Schema   *jsonschema.Schema
	Inverted bool
}

type collector interface {
	add(MatchingSchema)
	merge(other collector)
	include(node Node) bool
	newSub() collector
	all() []MatchingSchema
}

type schemaCollector struct {
	focusOffset int
	exclude     Node
	schemas     []MatchingSchema
}

func (c *schemaCollector) add(s MatchingSchema) { c.schemas = append(c.schemas, s) }

func (c *schemaCollector) merge(other collector) {
	c.schemas = append(c.schemas, other.all()...)
}

func (c *schemaCollector) include(node Node) bool {
	return (c.focusOffset < 0 || Contains(node, c.focusOffset, false)) && node != c.exclude
}

func (c *schemaCollector) newSub() collector {
	return &schemaCollector{focusOffset: -1, exclude: c.exclude}
}

func (c *schemaCollector) all() []MatchingSchema { return c.schemas }

type noopCollector struct{}

func (noopCollector) add(MatchingSchema)    {}
func (noopCollector) merge(collector)       {}
func (noopCollector) include(Node) bool     { return true }
func (noopCollector) newSub() collector     { return noopCollector{} }
func (noopCollector) all() []MatchingSchema { return nil }

// formatValues renders values as a comma separated JSON list.
func formatValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = toJSON(v)
	}
	return strings.Join(parts, ", ")
}

// toJSON renders v compactly without HTML escaping.
func toJSON(v any) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
