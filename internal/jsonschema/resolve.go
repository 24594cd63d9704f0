package jsonschema

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// UnresolvedSchema is a loaded schema document before `$ref` resolution.
// Load failures are recorded in Errors; Schema is then an empty schema.
type UnresolvedSchema struct {
	Schema *Schema
	Errors []string

	raw []byte
}

// ResolvedSchema is a schema with every `$ref` merged in place.
type ResolvedSchema struct {
	Schema   *Schema
	Errors   []string
	Warnings []string
	Draft    Draft
}

// copySchema returns a private tree decoded from the stored document so
// resolution never mutates the cached one.
func (u *UnresolvedSchema) copySchema() *Schema {
	if len(u.raw) == 0 {
		return &Schema{}
	}
	s, err := Parse(u.raw)
	if err != nil {
		return &Schema{}
	}
	return s
}

type pendingLink struct {
	node     *Schema
	uri      string
	fragment string
	parent   *schemaHandle
}

// resolver carries the state of one resolution run.
type resolver struct {
	svc    *Service
	ctx    context.Context
	handle *schemaHandle

	errors      []string
	unsupported []string
	docs        map[string]*Schema
	anchors     map[*Schema]map[string]*Schema
}

func (s *Service) resolveSchemaContent(ctx context.Context, unresolved *UnresolvedSchema, h *schemaHandle) *ResolvedSchema {
	errs := append([]string(nil), unresolved.Errors...)
	root := unresolved.copySchema()

	draft := DraftFromURI(root.SchemaURI)
	if draft == Draft3 {
		return &ResolvedSchema{
			Schema: &Schema{},
			Errors: []string{"Draft-03 schemas are not supported."},
			Draft:  draft,
		}
	}

	r := &resolver{
		svc:     s,
		ctx:     ctx,
		handle:  h,
		docs:    map[string]*Schema{h.uri: root},
		anchors: make(map[*Schema]map[string]*Schema),
	}
	r.resolveRefs(root, root, h)

	resolved := &ResolvedSchema{
		Schema: root,
		Errors: append(errs, r.errors...),
		Draft:  draft,
	}
	if len(r.unsupported) > 0 {
		resolved.Warnings = append(resolved.Warnings, fmt.Sprintf(
			"The schema uses meta-schema features (%s) that are not yet supported by the validator.",
			strings.Join(r.unsupported, ", ")))
	}
	return resolved
}

// resolveRefs resolves every `$ref` reachable from node. Local references
// are resolved during the walk; external ones after it, in the context of
// the referenced document.
func (r *resolver) resolveRefs(node, parentSchema *Schema, parent *schemaHandle) {
	var pending []pendingLink

	traverse(node, func(next *Schema) {
		r.noteUnsupported(next)
		seenRefs := make(map[string]bool)
		for next.Ref != "" {
			ref := next.Ref
			next.Ref = ""
			base, fragment, _ := strings.Cut(ref, "#")
			if base != "" {
				pending = append(pending, pendingLink{node: next, uri: base, fragment: fragment, parent: parent})
				return
			}
			if seenRefs[ref] {
				continue
			}
			seenRefs[ref] = true
			r.mergeRef(next, parentSchema, parent, fragment)
		}
	})

	for _, p := range pending {
		r.resolveExternal(p)
	}
}

func (r *resolver) resolveExternal(p pendingLink) {
	uri := p.uri
	if !hasScheme(uri) {
		uri = resolveRelative(uri, p.parent.uri)
	}
	uri = normalizeID(uri)

	h := r.svc.getOrAddHandle(uri)
	unresolved, err := r.svc.unresolvedSchema(r.ctx, h)
	if err != nil {
		r.errors = append(r.errors, fmt.Sprintf("Problems loading reference '%s': %v", uri, err))
		return
	}
	r.svc.addDependency(p.parent, uri)
	if len(unresolved.Errors) > 0 {
		loc := uri
		if p.fragment != "" {
			loc = uri + "#" + p.fragment
		}
		r.errors = append(r.errors, fmt.Sprintf("Problems loading reference '%s': %s", loc, unresolved.Errors[0]))
	}

	doc, ok := r.docs[uri]
	if !ok {
		doc = unresolved.copySchema()
		r.docs[uri] = doc
	}
	r.mergeRef(p.node, doc, h, p.fragment)
	r.resolveRefs(p.node, doc, h)
}

// mergeRef merges the section of root addressed by fragment into target.
// The fragment is a JSON pointer or an anchor name.
func (r *resolver) mergeRef(target, root *Schema, h *schemaHandle, fragment string) {
	var section *Schema
	if fragment == "" || strings.HasPrefix(fragment, "/") {
		section = findSection(root, fragment)
	} else {
		section = r.anchorsOf(root)[fragment]
	}
	if section == nil {
		r.errors = append(r.errors, fmt.Sprintf("$ref '%s' in '%s' can not be resolved.", fragment, h.uri))
		return
	}
	merge(target, section)
}

func (r *resolver) anchorsOf(root *Schema) map[string]*Schema {
	if a, ok := r.anchors[root]; ok {
		return a
	}
	result := make(map[string]*Schema)
	traverse(root, func(next *Schema) {
		id := next.ID
		if id == "" {
			id = next.LegacyID
		}
		anchor := next.Anchor
		if strings.HasPrefix(id, "#") {
			anchor = id[1:]
		}
		if anchor == "" {
			return
		}
		if _, dup := result[anchor]; dup {
			r.errors = append(r.errors, fmt.Sprintf("Duplicate anchor declaration: '%s'", anchor))
			return
		}
		result[anchor] = next
	})
	r.anchors[root] = result
	return result
}

func (r *resolver) noteUnsupported(s *Schema) {
	add := func(feature string) {
		for _, f := range r.unsupported {
			if f == feature {
				return
			}
		}
		r.unsupported = append(r.unsupported, feature)
	}
	if s.RecursiveRef != "" {
		add("$recursiveRef")
	}
	if len(s.RecursiveAnchor) > 0 {
		add("$recursiveAnchor")
	}
	if s.DynamicRef != "" {
		add("$dynamicRef")
	}
	if s.DynamicAnchor != "" {
		add("$dynamicAnchor")
	}
}

var schemaStruct = reflect.TypeOf(Schema{})

// merge copies every keyword of section that target does not set. Existing
// keywords on target win; identifiers are never copied.
func merge(target, section *Schema) {
	if section == nil || target == section {
		return
	}
	tv := reflect.ValueOf(target).Elem()
	sv := reflect.ValueOf(section).Elem()
	for i := 0; i < schemaStruct.NumField(); i++ {
		switch schemaStruct.Field(i).Name {
		case "ID", "LegacyID", "Const", "HasConst", "Default", "HasDefault":
			continue
		}
		tf, sf := tv.Field(i), sv.Field(i)
		if tf.IsZero() && !sf.IsZero() {
			tf.Set(sf)
		}
	}
	if !target.HasConst && section.HasConst {
		target.HasConst, target.Const = true, section.Const
	}
	if !target.HasDefault && section.HasDefault {
		target.HasDefault, target.Default = true, section.Default
	}
}

// findSection follows a JSON pointer through the schema keywords of root.
func findSection(root *Schema, pointer string) *Schema {
	if p, err := url.PathUnescape(pointer); err == nil {
		pointer = p
	}
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return root
	}
	parts := strings.Split(pointer, "/")
	for i := range parts {
		parts[i] = strings.ReplaceAll(strings.ReplaceAll(parts[i], "~1", "/"), "~0", "~")
	}

	cur := root
	for i := 0; i < len(parts); i++ {
		if cur == nil {
			return nil
		}
		next := func() (string, bool) {
			if i+1 >= len(parts) {
				return "", false
			}
			i++
			return parts[i], true
		}
		index := func(list []*Schema) *Schema {
			key, ok := next()
			if !ok {
				return nil
			}
			n, err := strconv.Atoi(key)
			if err != nil || n < 0 || n >= len(list) {
				return nil
			}
			return list[n]
		}
		member := func(m map[string]*Schema) *Schema {
			key, ok := next()
			if !ok {
				return nil
			}
			return m[key]
		}

		switch parts[i] {
		case "properties":
			cur = member(cur.Properties)
		case "patternProperties":
			cur = member(cur.PatternProperties)
		case "definitions":
			cur = member(cur.Definitions)
		case "$defs":
			cur = member(cur.Defs)
		case "dependentSchemas":
			cur = member(cur.DependentSchemas)
		case "dependencies":
			key, ok := next()
			if !ok || cur.Dependencies[key] == nil {
				return nil
			}
			cur = cur.Dependencies[key].Schema
		case "items":
			if cur.TupleItems != nil {
				cur = index(cur.TupleItems)
			} else {
				cur = cur.Items
			}
		case "prefixItems":
			cur = index(cur.PrefixItems)
		case "allOf":
			cur = index(cur.AllOf)
		case "anyOf":
			cur = index(cur.AnyOf)
		case "oneOf":
			cur = index(cur.OneOf)
		case "not":
			cur = cur.Not
		case "if":
			cur = cur.If
		case "then":
			cur = cur.Then
		case "else":
			cur = cur.Else
		case "additionalProperties":
			cur = cur.AdditionalProperties
		case "additionalItems":
			cur = cur.AdditionalItems
		case "contains":
			cur = cur.Contains
		case "propertyNames":
			cur = cur.PropertyNames
		case "unevaluatedItems":
			cur = cur.UnevaluatedItems
		case "unevaluatedProperties":
			cur = cur.UnevaluatedProperties
		default:
			return nil
		}
	}
	return cur
}

// traverse visits every schema reachable from root once. Children are
// collected after visit returns, so keywords merged in by visit are walked
// too.
func traverse(root *Schema, visit func(*Schema)) {
	if root == nil {
		return
	}
	seen := make(map[*Schema]bool)
	toWalk := []*Schema{root}

	push := func(list ...*Schema) {
		for _, s := range list {
			if s != nil && !s.IsBoolean() {
				toWalk = append(toWalk, s)
			}
		}
	}
	pushMap := func(m map[string]*Schema) {
		for _, s := range m {
			push(s)
		}
	}

	for len(toWalk) > 0 {
		next := toWalk[len(toWalk)-1]
		toWalk = toWalk[:len(toWalk)-1]
		if seen[next] {
			continue
		}
		seen[next] = true
		visit(next)

		push(next.AdditionalItems, next.AdditionalProperties, next.Not, next.Contains,
			next.PropertyNames, next.If, next.Then, next.Else,
			next.UnevaluatedItems, next.UnevaluatedProperties, next.Items)
		pushMap(next.Definitions)
		pushMap(next.Defs)
		pushMap(next.Properties)
		pushMap(next.PatternProperties)
		pushMap(next.DependentSchemas)
		for _, d := range next.Dependencies {
			push(d.Schema)
		}
		push(next.AnyOf...)
		push(next.AllOf...)
		push(next.OneOf...)
		push(next.PrefixItems...)
		push(next.TupleItems...)
	}
}
