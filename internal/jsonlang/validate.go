package jsonlang

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
)

var (
	acceptAll = &jsonschema.Schema{}
	rejectAll = &jsonschema.Schema{Not: acceptAll}
)

// asSchema turns boolean schemas into their object equivalents.
func asSchema(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil || s.Boolean == nil {
		return s
	}
	if *s.Boolean {
		return acceptAll
	}
	return rejectAll
}

type validator struct {
	draft jsonschema.Draft
}

func (v *validator) validate(n Node, schema *jsonschema.Schema, result *ValidationResult, c collector) {
	if n == nil || !c.include(n) {
		return
	}
	schema = asSchema(schema)
	if schema == nil {
		return
	}
	if p, ok := n.(*PropertyNode); ok {
		if p.ValueNode != nil {
			v.validate(p.ValueNode, schema, result, c)
		}
		return
	}

	v.validateNode(n, schema, result, c)
	switch node := n.(type) {
	case *ObjectNode:
		v.validateObject(node, schema, result, c)
	case *ArrayNode:
		v.validateArray(node, schema, result, c)
	case *StringNode:
		v.validateString(node, schema, result)
	case *NumberNode:
		v.validateNumber(node, schema, result)
	}
	c.add(MatchingSchema{Node: n, Schema: schema})
}

func matchesType(n Node, typ string) bool {
	if string(n.Type()) == typ {
		return true
	}
	num, ok := n.(*NumberNode)
	return ok && typ == jsonschema.TypeNameInteger && num.IsInteger
}

func orMessage(schema *jsonschema.Schema, format string, args ...any) string {
	if schema.ErrorMessage != "" {
		return schema.ErrorMessage
	}
	return fmt.Sprintf(format, args...)
}

// validateNode applies the keywords that hold for every node type.
func (v *validator) validateNode(n Node, schema *jsonschema.Schema, result *ValidationResult, c collector) {
	if types := schema.Type.Types; len(types) > 0 {
		matched := false
		for _, t := range types {
			if matchesType(n, t) {
				matched = true
				break
			}
		}
		if !matched {
			var msg string
			if len(types) > 1 {
				msg = orMessage(schema, "Incorrect type. Expected one of %s.", strings.Join(types, ", "))
			} else {
				msg = orMessage(schema, "Incorrect type. Expected \"%s\".", types[0])
			}
			result.Problems = append(result.Problems, Diagnostic{
				Offset:  n.Offset(),
				Length:  n.Length(),
				Code:    TypeMismatchWarning,
				Message: msg,
			})
		}
	}

	for _, sub := range schema.AllOf {
		subResult := newValidationResult()
		subCollector := c.newSub()
		v.validate(n, sub, subResult, subCollector)
		result.merge(subResult)
		c.merge(subCollector)
	}

	if not := asSchema(schema.Not); not != nil {
		subResult := newValidationResult()
		subCollector := c.newSub()
		v.validate(n, not, subResult, subCollector)
		if !subResult.HasProblems() {
			result.addProblem(n, orMessage(schema, "Matches a schema that is not allowed."))
		}
		for _, ms := range subCollector.all() {
			ms.Inverted = !ms.Inverted
			c.add(ms)
		}
	}

	if len(schema.AnyOf) > 0 {
		v.testAlternatives(n, schema.AnyOf, false, result, c)
	}
	if len(schema.OneOf) > 0 {
		v.testAlternatives(n, schema.OneOf, true, result, c)
	}

	if ifSchema := asSchema(schema.If); ifSchema != nil {
		subResult := newValidationResult()
		subCollector := c.newSub()
		v.validate(n, ifSchema, subResult, subCollector)
		c.merge(subCollector)
		result.mergeProcessed(subResult)

		branch := schema.Else
		if !subResult.HasProblems() {
			branch = schema.Then
		}
		if branch != nil {
			branchResult := newValidationResult()
			branchCollector := c.newSub()
			v.validate(n, branch, branchResult, branchCollector)
			result.merge(branchResult)
			c.merge(branchCollector)
		}
	}

	if schema.Enum != nil {
		val := n.Value()
		match := false
		for _, e := range schema.Enum {
			if jsonEqual(val, e) {
				match = true
				break
			}
		}
		result.EnumValues = schema.Enum
		result.EnumValueMatch = match
		if !match {
			result.Problems = append(result.Problems, Diagnostic{
				Offset:  n.Offset(),
				Length:  n.Length(),
				Code:    EnumValueMismatch,
				Message: orMessage(schema, "Value is not accepted. Valid values: %s.", formatValues(schema.Enum)),
			})
		}
	}

	if schema.HasConst {
		if !jsonEqual(n.Value(), schema.Const) {
			result.Problems = append(result.Problems, Diagnostic{
				Offset:  n.Offset(),
				Length:  n.Length(),
				Code:    EnumValueMismatch,
				Message: orMessage(schema, "Value must be %s.", toJSON(schema.Const)),
			})
			result.EnumValueMatch = false
		} else {
			result.EnumValueMatch = true
		}
		result.EnumValues = []any{schema.Const}
	}

	// A deprecationMessage is a problem; a bare `deprecated: true` is only
	// a hint so it can't push the validator toward another branch.
	if schema.DeprecationMessage != "" || schema.Deprecated {
		target := n
		if p, ok := n.Parent().(*PropertyNode); ok {
			target = p
		}
		d := Diagnostic{
			Offset:   target.Offset(),
			Length:   target.Length(),
			Severity: protocol.DiagnosticSeverityWarning,
			Code:     Deprecated,
			Message:  schema.DeprecationMessage,
		}
		if d.Message != "" {
			result.Problems = append(result.Problems, d)
		} else {
			d.Severity = protocol.DiagnosticSeverityHint
			d.Message = "Value is deprecated"
			result.Hints = append(result.Hints, d)
		}
	}
}

type branchMatch struct {
	result    *ValidationResult
	collector collector
}

// testAlternatives validates n against each alternative and keeps the
// best-ranked branch. With maxOneMatch more than one clean branch is a
// problem.
func (v *validator) testAlternatives(n Node, alternatives []*jsonschema.Schema, maxOneMatch bool, result *ValidationResult, c collector) int {
	matches := 0
	var best *branchMatch
	for _, alt := range alternatives {
		subResult := newValidationResult()
		subCollector := c.newSub()
		v.validate(n, alt, subResult, subCollector)
		if !subResult.HasProblems() {
			matches++
		}
		switch {
		case best == nil:
			best = &branchMatch{result: subResult, collector: subCollector}
		case !maxOneMatch && !subResult.HasProblems() && !best.result.HasProblems():
			// Equally good matches; keep the schemas of both.
			best.collector.merge(subCollector)
			best.result.PropertiesMatches += subResult.PropertiesMatches
			best.result.PropertiesValueMatches += subResult.PropertiesValueMatches
			best.result.mergeProcessed(subResult)
		default:
			cmp := subResult.Compare(best.result)
			if cmp > 0 {
				best = &branchMatch{result: subResult, collector: subCollector}
			} else if cmp == 0 {
				best.collector.merge(subCollector)
				best.result.mergeEnumValues(subResult)
			}
		}
	}

	if matches > 1 && maxOneMatch {
		result.Problems = append(result.Problems, Diagnostic{
			Offset:  n.Offset(),
			Length:  1,
			Message: "Matches multiple schemas when only one must validate.",
		})
	}
	if best != nil {
		result.merge(best.result)
		c.merge(best.collector)
	}
	return matches
}

func (v *validator) validateNumber(n *NumberNode, schema *jsonschema.Schema, result *ValidationResult) {
	val := n.Number

	if schema.MultipleOf != nil && !isMultipleOf(val, *schema.MultipleOf) {
		result.addProblem(n, fmt.Sprintf("Value is not divisible by %s.", toJSON(*schema.MultipleOf)))
	}

	exclusiveMin := exclusiveLimit(schema.Minimum, schema.ExclusiveMinimum, schema.ExclusiveMinimumFlag)
	if exclusiveMin != nil && val <= *exclusiveMin {
		result.addProblem(n, fmt.Sprintf("Value is below the exclusive minimum of %s.", toJSON(*exclusiveMin)))
	}
	exclusiveMax := exclusiveLimit(schema.Maximum, schema.ExclusiveMaximum, schema.ExclusiveMaximumFlag)
	if exclusiveMax != nil && val >= *exclusiveMax {
		result.addProblem(n, fmt.Sprintf("Value is above the exclusive maximum of %s.", toJSON(*exclusiveMax)))
	}
	if minimum := inclusiveLimit(schema.Minimum, schema.ExclusiveMinimumFlag); minimum != nil && val < *minimum {
		result.addProblem(n, fmt.Sprintf("Value is below the minimum of %s.", toJSON(*minimum)))
	}
	if maximum := inclusiveLimit(schema.Maximum, schema.ExclusiveMaximumFlag); maximum != nil && val > *maximum {
		result.addProblem(n, fmt.Sprintf("Value is above the maximum of %s.", toJSON(*maximum)))
	}
}

// exclusiveLimit returns the numeric exclusive bound, or the plain bound
// when the draft-04 flag makes it exclusive.
func exclusiveLimit(limit, exclusive *float64, flag bool) *float64 {
	if exclusive != nil {
		return exclusive
	}
	if flag {
		return limit
	}
	return nil
}

func inclusiveLimit(limit *float64, flag bool) *float64 {
	if flag {
		return nil
	}
	return limit
}

// isMultipleOf divides exactly in decimal so that 0.3 is a multiple of
// 0.1.
func isMultipleOf(val, divisor float64) bool {
	if divisor == 0 {
		return true
	}
	if divisor == math.Trunc(divisor) {
		return math.Mod(val, divisor) == 0
	}
	a, okA := new(big.Rat).SetString(strconv.FormatFloat(val, 'g', -1, 64))
	b, okB := new(big.Rat).SetString(strconv.FormatFloat(divisor, 'g', -1, 64))
	if !okA || !okB {
		return false
	}
	return new(big.Rat).Quo(a, b).IsInt()
}

func (v *validator) validateString(n *StringNode, schema *jsonschema.Schema, result *ValidationResult) {
	length := utf8.RuneCountInString(n.Content)
	if schema.MinLength != nil && length < *schema.MinLength {
		result.addProblem(n, fmt.Sprintf("String is shorter than the minimum length of %d.", *schema.MinLength))
	}
	if schema.MaxLength != nil && length > *schema.MaxLength {
		result.addProblem(n, fmt.Sprintf("String is longer than the maximum length of %d.", *schema.MaxLength))
	}

	if schema.Pattern != "" {
		re := extendedRegexp(schema.Pattern)
		if re == nil || !re.MatchString(n.Content) {
			result.addProblem(n, patternMessage(schema, fmt.Sprintf("String does not match the pattern of \"%s\".", schema.Pattern)))
		}
	}

	if schema.Format != "" {
		if msg := checkFormat(schema.Format, n.Content); msg != "" {
			result.addProblem(n, patternMessage(schema, msg))
		}
	}
}

func patternMessage(schema *jsonschema.Schema, fallback string) string {
	switch {
	case schema.PatternErrorMessage != "":
		return schema.PatternErrorMessage
	case schema.ErrorMessage != "":
		return schema.ErrorMessage
	}
	return fallback
}

// arraySchemas splits the item keywords into positional schemas and the
// schema for the remaining items. Draft 2020-12 uses prefixItems and a
// uniform items; earlier drafts use an items array with additionalItems.
// Without a declared draft the presence of prefixItems decides.
func (v *validator) arraySchemas(schema *jsonschema.Schema) (prefix []*jsonschema.Schema, rest *jsonschema.Schema) {
	modern := v.draft >= jsonschema.Draft2020_12 ||
		v.draft == jsonschema.DraftUnknown && schema.PrefixItems != nil
	if modern {
		return schema.PrefixItems, schema.Items
	}
	if schema.TupleItems != nil {
		return schema.TupleItems, schema.AdditionalItems
	}
	return nil, schema.Items
}

func (v *validator) validateArray(n *ArrayNode, schema *jsonschema.Schema, result *ValidationResult, c collector) {
	prefix, rest := v.arraySchemas(schema)

	index := 0
	for ; index < len(prefix) && index < len(n.Items); index++ {
		itemResult := newValidationResult()
		v.validate(n.Items[index], prefix[index], itemResult, c)
		result.mergePropertyMatch(itemResult)
		result.ProcessedItems[index] = true
	}

	if rest != nil && index < len(n.Items) {
		if rest.IsBoolean() {
			if rest.IsFalse() {
				result.addProblem(n, fmt.Sprintf("Array has too many items according to schema. Expected %d or fewer.", index))
			}
			for ; index < len(n.Items); index++ {
				result.ProcessedItems[index] = true
				result.PropertiesValueMatches++
			}
		} else {
			for ; index < len(n.Items); index++ {
				itemResult := newValidationResult()
				v.validate(n.Items[index], rest, itemResult, c)
				result.mergePropertyMatch(itemResult)
				result.ProcessedItems[index] = true
			}
		}
	}

	if contains := asSchema(schema.Contains); contains != nil {
		count := 0
		for i, item := range n.Items {
			itemResult := newValidationResult()
			v.validate(item, contains, itemResult, noopCollector{})
			if !itemResult.HasProblems() {
				count++
				if v.draft >= jsonschema.Draft2020_12 {
					result.ProcessedItems[i] = true
				}
			}
		}
		if count == 0 && schema.MinContains == nil {
			result.addProblem(n, orMessage(schema, "Array does not contain required item."))
		}
		if schema.MinContains != nil && count < *schema.MinContains {
			result.addProblem(n, orMessage(schema, "Array has too few items that match the contains contraint. Expected %d or more.", *schema.MinContains))
		}
		if schema.MaxContains != nil && count > *schema.MaxContains {
			result.addProblem(n, orMessage(schema, "Array has too many items that match the contains contraint. Expected %d or less.", *schema.MaxContains))
		}
	}

	if unevaluated := schema.UnevaluatedItems; unevaluated != nil {
		for i, item := range n.Items {
			if !result.ProcessedItems[i] {
				if unevaluated.IsFalse() {
					result.addProblem(n, "Item does not match any validation rule from the array.")
				} else {
					itemResult := newValidationResult()
					v.validate(item, unevaluated, itemResult, c)
					result.mergePropertyMatch(itemResult)
				}
			}
			result.ProcessedItems[i] = true
			result.PropertiesValueMatches++
		}
	}

	if schema.MinItems != nil && len(n.Items) < *schema.MinItems {
		result.addProblem(n, fmt.Sprintf("Array has too few items. Expected %d or more.", *schema.MinItems))
	}
	if schema.MaxItems != nil && len(n.Items) > *schema.MaxItems {
		result.addProblem(n, fmt.Sprintf("Array has too many items. Expected %d or fewer.", *schema.MaxItems))
	}

	if schema.UniqueItems {
		values := make([]any, len(n.Items))
		for i, item := range n.Items {
			values[i] = item.Value()
		}
		if hasDuplicates(values) {
			result.addProblem(n, "Array has duplicate items.")
		}
	}
}

func hasDuplicates(values []any) bool {
	for i := 0; i < len(values)-1; i++ {
		for j := i + 1; j < len(values); j++ {
			if jsonEqual(values[i], values[j]) {
				return true
			}
		}
	}
	return false
}

func (v *validator) validateObject(n *ObjectNode, schema *jsonschema.Schema, result *ValidationResult, c collector) {
	seen := make(map[string]Node, len(n.Properties))
	var keys []string
	unprocessed := make(map[string]bool, len(n.Properties))
	for _, p := range n.Properties {
		key := p.KeyNode.Content
		if _, dup := seen[key]; !dup {
			keys = append(keys, key)
		}
		seen[key] = p.ValueNode
		unprocessed[key] = true
	}

	for _, name := range schema.Required {
		if seen[name] != nil {
			continue
		}
		problem := Diagnostic{
			Offset:   n.Offset(),
			Length:   1,
			Severity: protocol.DiagnosticSeverityWarning,
			Code:     MissingRequiredPropWarning,
			Message:  fmt.Sprintf("Missing property \"%s\".", name),
		}
		if p, ok := n.Parent().(*PropertyNode); ok {
			problem.Offset, problem.Length = p.KeyNode.Offset(), p.KeyNode.Length()
		}
		result.Problems = append(result.Problems, problem)
	}

	processed := func(name string) {
		delete(unprocessed, name)
		result.ProcessedProperties[name] = true
	}

	// validateProperty applies a property-level schema to child.
	validateProperty := func(name string, child Node, propSchema *jsonschema.Schema) {
		if propSchema.IsBoolean() {
			if propSchema.IsFalse() {
				key := child.Parent().(*PropertyNode).KeyNode
				result.addProblem(key, orMessage(schema, "Property %s is not allowed.", name))
			} else {
				result.PropertiesMatches++
				result.PropertiesValueMatches++
			}
			return
		}
		propResult := newValidationResult()
		v.validate(child, propSchema, propResult, c)
		result.mergePropertyMatch(propResult)
	}

	for _, name := range schema.PropertyNames() {
		processed(name)
		if child := seen[name]; child != nil {
			validateProperty(name, child, schema.Properties[name])
		}
	}

	for _, pattern := range schema.PatternPropertyNames() {
		re := extendedRegexp(pattern)
		if re == nil {
			continue
		}
		var matched []string
		for _, name := range keys {
			if !unprocessed[name] || !re.MatchString(name) {
				continue
			}
			matched = append(matched, name)
			if child := seen[name]; child != nil {
				validateProperty(name, child, schema.PatternProperties[pattern])
			}
		}
		for _, name := range matched {
			processed(name)
		}
	}

	if additional := schema.AdditionalProperties; additional != nil {
		for _, name := range keys {
			if !unprocessed[name] {
				continue
			}
			processed(name)
			child := seen[name]
			if child == nil {
				continue
			}
			if additional.IsFalse() {
				key := child.Parent().(*PropertyNode).KeyNode
				result.addProblem(key, orMessage(schema, "Property %s is not allowed.", name))
			} else if !additional.IsTrue() {
				propResult := newValidationResult()
				v.validate(child, additional, propResult, c)
				result.mergePropertyMatch(propResult)
			}
		}
	}

	if unevaluated := schema.UnevaluatedProperties; unevaluated != nil {
		var matched []string
		for _, name := range keys {
			if !unprocessed[name] || result.ProcessedProperties[name] {
				continue
			}
			matched = append(matched, name)
			child := seen[name]
			if child == nil {
				continue
			}
			if unevaluated.IsFalse() {
				key := child.Parent().(*PropertyNode).KeyNode
				result.addProblem(key, orMessage(schema, "Property %s is not allowed.", name))
			} else if !unevaluated.IsTrue() {
				propResult := newValidationResult()
				v.validate(child, unevaluated, propResult, c)
				result.mergePropertyMatch(propResult)
			}
		}
		for _, name := range matched {
			processed(name)
		}
	}

	if schema.MaxProperties != nil && len(n.Properties) > *schema.MaxProperties {
		result.addProblem(n, fmt.Sprintf("Object has more properties than limit of %d.", *schema.MaxProperties))
	}
	if schema.MinProperties != nil && len(n.Properties) < *schema.MinProperties {
		result.addProblem(n, fmt.Sprintf("Object has fewer properties than the required number of %d", *schema.MinProperties))
	}

	requireAll := func(key string, names []string) {
		for _, name := range names {
			if seen[name] == nil {
				result.addProblem(n, fmt.Sprintf("Object is missing property %s required by property %s.", name, key))
			} else {
				result.PropertiesValueMatches++
			}
		}
	}
	applyDependent := func(depSchema *jsonschema.Schema) {
		if depSchema = asSchema(depSchema); depSchema == nil {
			return
		}
		propResult := newValidationResult()
		v.validate(n, depSchema, propResult, c)
		result.mergePropertyMatch(propResult)
	}

	for _, key := range sortedKeys(schema.DependentRequired) {
		if seen[key] != nil {
			requireAll(key, schema.DependentRequired[key])
		}
	}
	for _, key := range sortedKeys(schema.DependentSchemas) {
		if seen[key] != nil {
			applyDependent(schema.DependentSchemas[key])
		}
	}
	for _, key := range sortedKeys(schema.Dependencies) {
		if seen[key] == nil {
			continue
		}
		dep := schema.Dependencies[key]
		if dep.Schema != nil {
			applyDependent(dep.Schema)
		} else {
			requireAll(key, dep.Required)
		}
	}

	if names := asSchema(schema.PropertyNames); names != nil {
		for _, p := range n.Properties {
			v.validate(p.KeyNode, names, result, noopCollector{})
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// jsonEqual compares decoded JSON values structurally.
func jsonEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !jsonEqual(x, y) {
				return false
			}
		}
		return true
	}
	return false
}
