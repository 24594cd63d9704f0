package jsonschema

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves schema documents from memory and counts fetches.
type fakeFetcher struct {
	mu     sync.Mutex
	docs   map[string]string
	counts map[string]int
	delay  time.Duration
}

func newFakeFetcher(docs map[string]string) *fakeFetcher {
	return &fakeFetcher{docs: docs, counts: make(map[string]int)}
}

func (f *fakeFetcher) fetch(ctx context.Context, uri string) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[uri]++
	doc, ok := f.docs[uri]
	if !ok {
		return "", errors.New("not found")
	}
	return doc, nil
}

func (f *fakeFetcher) count(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[uri]
}

func resolve(t *testing.T, svc *Service, uri string) *ResolvedSchema {
	t.Helper()
	rs, err := svc.GetResolvedSchema(context.Background(), uri)
	require.NoError(t, err)
	require.NotNil(t, rs, "no schema registered for %s", uri)
	return rs
}

func TestService_InlineSchema(t *testing.T) {
	svc := NewService(nil)
	svc.RegisterExternalSchema(SchemaConfiguration{
		URI:    "https://x/s.json",
		Schema: []byte(`{"definitions": {"n": {"type": "number"}}, "properties": {"a": {"$ref": "#/definitions/n"}}}`),
	})

	rs := resolve(t, svc, "https://x/s.json")
	assert.Empty(t, rs.Errors)
	assert.True(t, rs.Schema.Properties["a"].Type.Is("number"))
	assert.Empty(t, rs.Schema.Properties["a"].Ref)

	missing, err := svc.GetResolvedSchema(context.Background(), "https://x/unknown.json")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestService_LocalRefs(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		check  func(t *testing.T, rs *ResolvedSchema)
	}{
		{
			name:   "existing keywords win",
			schema: `{"definitions": {"d": {"type": "string", "description": "from def"}}, "properties": {"a": {"$ref": "#/definitions/d", "description": "own"}}}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				a := rs.Schema.Properties["a"]
				assert.Equal(t, "own", a.Description)
				assert.True(t, a.Type.Is("string"))
			},
		},
		{
			name:   "anchor",
			schema: `{"$defs": {"n": {"$anchor": "name", "type": "string"}}, "properties": {"x": {"$ref": "#name"}}}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				assert.Empty(t, rs.Errors)
				assert.True(t, rs.Schema.Properties["x"].Type.Is("string"))
			},
		},
		{
			name:   "legacy id anchor",
			schema: `{"definitions": {"n": {"id": "#num", "type": "number"}}, "items": {"$ref": "#num"}}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				assert.True(t, rs.Schema.Items.Type.Is("number"))
			},
		},
		{
			name:   "recursive root reference",
			schema: `{"type": "object", "properties": {"child": {"$ref": "#"}}}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				child := rs.Schema.Properties["child"]
				assert.True(t, child.Type.Is("object"))
				assert.Same(t, child, child.Properties["child"])
			},
		},
		{
			name:   "reference cycle terminates",
			schema: `{"definitions": {"a": {"$ref": "#/definitions/b"}, "b": {"$ref": "#/definitions/a"}}, "$ref": "#/definitions/a"}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				assert.Empty(t, rs.Schema.Ref)
			},
		},
		{
			name:   "pointer escapes",
			schema: `{"definitions": {"a/b": {"type": "boolean"}, "c~d": {"type": "null"}}, "properties": {"x": {"$ref": "#/definitions/a~1b"}, "y": {"$ref": "#/definitions/c~0d"}}}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				assert.True(t, rs.Schema.Properties["x"].Type.Is("boolean"))
				assert.True(t, rs.Schema.Properties["y"].Type.Is("null"))
			},
		},
		{
			name:   "unresolvable",
			schema: `{"properties": {"x": {"$ref": "#/definitions/missing"}}}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				assert.Equal(t, []string{"$ref '/definitions/missing' in 'https://x/s.json' can not be resolved."}, rs.Errors)
			},
		},
		{
			name:   "unsupported features",
			schema: `{"$dynamicAnchor": "meta", "properties": {"x": {"$dynamicRef": "#meta"}}}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				require.Len(t, rs.Warnings, 1)
				assert.Contains(t, rs.Warnings[0], "$dynamicAnchor, $dynamicRef")
			},
		},
		{
			name:   "draft-03 rejected",
			schema: `{"$schema": "http://json-schema.org/draft-03/schema#", "type": "object"}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				assert.Equal(t, Draft3, rs.Draft)
				assert.Equal(t, []string{"Draft-03 schemas are not supported."}, rs.Errors)
			},
		},
		{
			name:   "draft detected",
			schema: `{"$schema": "https://json-schema.org/draft/2020-12/schema"}`,
			check: func(t *testing.T, rs *ResolvedSchema) {
				assert.Equal(t, Draft2020_12, rs.Draft)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(nil)
			svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/s.json", Schema: []byte(tt.schema)})
			tt.check(t, resolve(t, svc, "https://x/s.json"))
		})
	}
}

func newChainService() (*Service, *fakeFetcher) {
	f := newFakeFetcher(map[string]string{
		"https://x/a.json": `{"properties": {"b": {"$ref": "b.json"}}}`,
		"https://x/b.json": `{"properties": {"c": {"$ref": "https://x/c.json#/definitions/c"}}}`,
		"https://x/c.json": `{"definitions": {"c": {"type": "string"}}}`,
		"https://x/d.json": `{"type": "object"}`,
	})
	svc := NewService(f.fetch)
	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/a.json"})
	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/d.json"})
	return svc, f
}

func TestService_ExternalRefs(t *testing.T) {
	svc, _ := newChainService()

	rs := resolve(t, svc, "https://x/a.json")
	assert.Empty(t, rs.Errors)
	assert.True(t, rs.Schema.Properties["b"].Properties["c"].Type.Is("string"))

	assert.Equal(t, []string{"https://x/b.json"}, svc.Dependencies("https://x/a.json"))
	assert.Equal(t, []string{"https://x/c.json"}, svc.Dependencies("https://x/b.json"))

	// The cached documents keep their references.
	svc.mu.Lock()
	a := svc.handles["https://x/a.json"].unresolved.Schema
	b := svc.handles["https://x/b.json"].unresolved.Schema
	svc.mu.Unlock()
	assert.Equal(t, "b.json", a.Properties["b"].Ref)
	assert.Equal(t, "https://x/c.json#/definitions/c", b.Properties["c"].Ref)
}

func TestService_ResolutionIsReferenceStable(t *testing.T) {
	svc, f := newChainService()

	first := resolve(t, svc, "https://x/a.json")
	second := resolve(t, svc, "https://x/a.json")

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.count("https://x/a.json"))
	assert.Equal(t, 1, f.count("https://x/b.json"))
}

func TestService_TransitiveInvalidation(t *testing.T) {
	svc, f := newChainService()

	a := resolve(t, svc, "https://x/a.json")
	d := resolve(t, svc, "https://x/d.json")

	assert.True(t, svc.OnResourceChange("https://x/c.json"))

	svc.mu.Lock()
	for _, uri := range []string{"https://x/a.json", "https://x/b.json", "https://x/c.json"} {
		assert.Nil(t, svc.handles[uri].unresolved, uri)
		assert.Nil(t, svc.handles[uri].resolved, uri)
	}
	assert.NotNil(t, svc.handles["https://x/d.json"].resolved)
	svc.mu.Unlock()

	assert.Same(t, d, resolve(t, svc, "https://x/d.json"))

	again := resolve(t, svc, "https://x/a.json")
	assert.NotSame(t, a, again)
	assert.True(t, again.Schema.Properties["b"].Properties["c"].Type.Is("string"))
	assert.Equal(t, 2, f.count("https://x/a.json"))
	assert.Equal(t, 2, f.count("https://x/c.json"))
	assert.Equal(t, 1, f.count("https://x/d.json"))

	assert.False(t, svc.OnResourceChange("https://x/unrelated.json"))
}

func TestService_LoadErrors(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://x/s.json": `{"properties": {"x": {"$ref": "https://x/missing.json"}}}`,
	})
	svc := NewService(f.fetch)
	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/s.json"})

	rs := resolve(t, svc, "https://x/s.json")
	assert.Equal(t, []string{
		"Problems loading reference 'https://x/missing.json': Unable to load schema from 'https://x/missing.json': not found.",
	}, rs.Errors)

	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/gone.json"})
	gone := resolve(t, svc, "https://x/gone.json")
	assert.Equal(t, []string{"Unable to load schema from 'https://x/gone.json': not found."}, gone.Errors)
}

func TestService_ConcurrentLoadsAreShared(t *testing.T) {
	f := newFakeFetcher(map[string]string{"https://x/s.json": `{"type": "string"}`})
	f.delay = 20 * time.Millisecond
	svc := NewService(f.fetch)
	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/s.json"})

	const n = 8
	results := make([]*ResolvedSchema, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = svc.GetResolvedSchema(context.Background(), "https://x/s.json")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.count("https://x/s.json"))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestService_CallerCancellation(t *testing.T) {
	f := newFakeFetcher(map[string]string{"https://x/s.json": `{}`})
	f.delay = 50 * time.Millisecond
	svc := NewService(f.fetch)
	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/s.json"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.GetResolvedSchema(ctx, "https://x/s.json")
	assert.ErrorIs(t, err, context.Canceled)

	// The shared load still completes and is cached for the next caller.
	rs := resolve(t, svc, "https://x/s.json")
	assert.Empty(t, rs.Errors)
}

type declared string

func (d declared) DeclaredSchema() (string, bool) { return string(d), d != "" }

func TestService_SchemaForResource(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://x/pkg.json":  `{"type": "object", "required": ["name"]}`,
		"https://x/all.json":  `{"type": "object", "description": "all"}`,
		"https://x/self.json": `{"type": "array"}`,
	})
	svc := NewService(f.fetch)
	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/pkg.json", FileMatch: []string{"package.json"}})
	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/all.json", FileMatch: []string{"*.json", "!tsconfig.json"}})
	ctx := context.Background()

	assert.Equal(t, []string{"https://x/pkg.json", "https://x/all.json"}, svc.GetSchemaURIsForResource("file:///p/package.json?v=1"))
	assert.Empty(t, svc.GetSchemaURIsForResource("file:///p/tsconfig.json"))

	single, err := svc.GetSchemaForResource(ctx, "file:///p/other.json", nil)
	require.NoError(t, err)
	require.NotNil(t, single)
	assert.Equal(t, "all", single.Schema.Description)

	combined, err := svc.GetSchemaForResource(ctx, "file:///p/package.json", nil)
	require.NoError(t, err)
	require.NotNil(t, combined)
	require.Len(t, combined.Schema.AllOf, 2)
	assert.Equal(t, []string{"name"}, combined.Schema.AllOf[0].Required)
	assert.Equal(t, "all", combined.Schema.AllOf[1].Description)

	cached, err := svc.GetSchemaForResource(ctx, "file:///p/package.json", nil)
	require.NoError(t, err)
	assert.Same(t, combined, cached)

	own, err := svc.GetSchemaForResource(ctx, "file:///p/package.json", declared("https://x/self.json"))
	require.NoError(t, err)
	require.NotNil(t, own)
	assert.True(t, own.Schema.Type.Is("array"))

	none, err := svc.GetSchemaForResource(ctx, "file:///p/tsconfig.json", nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestService_Contributions(t *testing.T) {
	svc := NewService(nil)
	svc.SetSchemaContributions(BuiltinContributions())
	svc.RegisterExternalSchema(SchemaConfiguration{URI: "https://x/s.json", Schema: []byte(`{}`)})

	assert.Equal(t, []string{Draft07URI, "https://x/s.json"}, svc.RegisteredSchemaIDs(nil))

	svc.ClearExternalSchemas()
	assert.Equal(t, []string{Draft07URI}, svc.RegisteredSchemaIDs(nil))
	assert.Equal(t, []string{Draft07URI}, svc.GetSchemaURIsForResource("file:///p/my.schema.json"))

	meta := resolve(t, svc, "http://json-schema.org/draft-07/schema#")
	assert.Empty(t, meta.Errors)
	assert.Equal(t, Draft7, meta.Draft)
	require.NotNil(t, meta.Schema.Properties["type"])
	require.Len(t, meta.Schema.Properties["type"].AnyOf, 2)
	assert.Len(t, meta.Schema.Properties["type"].AnyOf[0].Enum, 7)
	assert.True(t, meta.Schema.Properties["minLength"].AllOf[0].Type.Is("integer"))
}
