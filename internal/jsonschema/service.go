package jsonschema

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/jsonls/internal/jsonc"
)

// Logger receives diagnostic output from the service.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// SchemaDeclarer is implemented by parsed documents that name their own
// schema through a top-level `$schema` property.
type SchemaDeclarer interface {
	DeclaredSchema() (string, bool)
}

// SchemaConfiguration registers a schema URI, optionally with inline
// content and the file patterns it applies to.
type SchemaConfiguration struct {
	URI       string
	FileMatch []string
	Schema    json.RawMessage
	FolderURI string
}

// Association binds file patterns to schema URIs.
type Association struct {
	Pattern   []string
	URIs      []string
	FolderURI string
}

// Contributions are built-in schemas and associations that survive
// ClearExternalSchemas.
type Contributions struct {
	Schemas      map[string]json.RawMessage
	Associations []Association
}

const combinedSchemaPrefix = "schemaservice://combinedSchema/"

var handleSeq atomic.Uint64

// schemaHandle caches one schema URI. Fields are guarded by Service.mu.
type schemaHandle struct {
	id  uint64
	uri string
	gen uint64

	dependencies map[string]struct{}
	unresolved   *UnresolvedSchema
	resolved     *ResolvedSchema
}

func newHandle(uri string, unresolved *UnresolvedSchema) *schemaHandle {
	return &schemaHandle{
		id:           handleSeq.Add(1),
		uri:          uri,
		dependencies: make(map[string]struct{}),
		unresolved:   unresolved,
	}
}

// clear drops the cached state and reports whether anything was loaded.
func (h *schemaHandle) clear() bool {
	changed := h.unresolved != nil
	h.unresolved = nil
	h.resolved = nil
	h.dependencies = make(map[string]struct{})
	h.gen++
	return changed
}

type cachedResource struct {
	resource string
	handle   *schemaHandle
}

// Service loads, resolves and caches JSON schemas and maps resources to
// the schemas that apply to them. It is safe for concurrent use.
type Service struct {
	fetch       FetchFunc
	logger      Logger
	baseCtx     context.Context
	loadTimeout time.Duration

	mu                       sync.Mutex
	handles                  map[string]*schemaHandle
	contributionSchemas      map[string]*schemaHandle
	contributionAssociations []*patternAssociation
	associations             []*patternAssociation
	registeredIDs            map[string]bool
	cachedForResource        *cachedResource

	group singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLoadTimeout bounds a single schema fetch.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.loadTimeout = d
	}
}

// WithBaseContext sets the context schema loads run under. Loads are shared
// between callers, so a caller's own context only bounds its wait.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Service) {
		s.baseCtx = ctx
	}
}

// NewService creates a schema service that loads documents with fetch.
// A nil fetch makes every external load fail with a schema error.
func NewService(fetch FetchFunc, opts ...Option) *Service {
	s := &Service{
		fetch:               fetch,
		logger:              nopLogger{},
		baseCtx:             context.Background(),
		loadTimeout:         30 * time.Second,
		handles:             make(map[string]*schemaHandle),
		contributionSchemas: make(map[string]*schemaHandle),
		registeredIDs:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterExternalSchema adds a schema URI with optional inline content and
// file patterns. Inline content replaces whatever was cached for the URI.
func (s *Service) RegisterExternalSchema(cfg SchemaConfiguration) {
	id := normalizeID(cfg.URI)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registeredIDs[id] = true
	s.cachedForResource = nil
	if len(cfg.FileMatch) > 0 {
		s.associations = append(s.associations, newPatternAssociation(cfg.FileMatch, cfg.FolderURI, []string{id}))
	}
	if len(cfg.Schema) > 0 {
		s.addHandleLocked(id, ParseSchemaContent(id, string(cfg.Schema)))
	} else {
		s.getOrAddHandleLocked(id)
	}
}

// ClearExternalSchemas removes everything registered through
// RegisterExternalSchema and keeps the contributions.
func (s *Service) ClearExternalSchemas() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handles = make(map[string]*schemaHandle)
	s.associations = nil
	s.registeredIDs = make(map[string]bool)
	s.cachedForResource = nil

	for id, h := range s.contributionSchemas {
		s.handles[id] = h
		s.registeredIDs[id] = true
	}
	s.associations = append(s.associations, s.contributionAssociations...)
}

// SetSchemaContributions installs built-in schemas and associations.
func (s *Service) SetSchemaContributions(c Contributions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for uri, content := range c.Schemas {
		id := normalizeID(uri)
		h := s.addHandleLocked(id, ParseSchemaContent(id, string(content)))
		s.contributionSchemas[id] = h
		s.registeredIDs[id] = true
	}
	for _, a := range c.Associations {
		pa := newPatternAssociation(a.Pattern, a.FolderURI, normalizeIDs(a.URIs))
		s.contributionAssociations = append(s.contributionAssociations, pa)
		s.associations = append(s.associations, pa)
	}
	s.cachedForResource = nil
}

// RegisteredSchemaIDs lists registered schema URIs, optionally filtered by
// scheme.
func (s *Service) RegisteredSchemaIDs(filter func(scheme string) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id := range s.registeredIDs {
		scheme, _, _ := strings.Cut(id, ":")
		if filter == nil || filter(scheme) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// GetResolvedSchema returns the resolved schema for a known URI, or nil if
// the URI was never registered or referenced.
func (s *Service) GetResolvedSchema(ctx context.Context, uri string) (*ResolvedSchema, error) {
	s.mu.Lock()
	h := s.handles[normalizeID(uri)]
	s.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return s.resolvedSchema(ctx, h)
}

// LoadSchema fetches and parses a schema document without caching it.
func (s *Service) LoadSchema(ctx context.Context, uri string) *UnresolvedSchema {
	return s.loadSchema(ctx, normalizeID(uri))
}

// ResolveSchemaContent resolves a schema document as if it were loaded
// from uri. Nothing is cached for uri, but referenced documents are.
func (s *Service) ResolveSchemaContent(ctx context.Context, schema *UnresolvedSchema, uri string) *ResolvedSchema {
	return s.resolveSchemaContent(ctx, schema, newHandle(normalizeID(uri), schema))
}

// GetSchemaForResource picks the schema for a document: its own `$schema`
// property when present, otherwise every matching association combined.
// It returns nil when no schema applies.
func (s *Service) GetSchemaForResource(ctx context.Context, resource string, doc SchemaDeclarer) (*ResolvedSchema, error) {
	if doc != nil {
		if declared, ok := doc.DeclaredSchema(); ok && declared != "" {
			if strings.HasPrefix(declared, ".") {
				declared = resolveRelative(declared, resource)
			}
			return s.resolvedSchema(ctx, s.getOrAddHandle(normalizeID(declared)))
		}
	}

	s.mu.Lock()
	if c := s.cachedForResource; c != nil && c.resource == resource {
		s.mu.Unlock()
		return s.resolvedSchema(ctx, c.handle)
	}
	s.mu.Unlock()

	ids := s.GetSchemaURIsForResource(resource)
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	var h *schemaHandle
	if len(ids) == 1 {
		h = s.getOrAddHandleLocked(ids[0])
	} else {
		h = s.addHandleLocked(combinedSchemaPrefix+url.QueryEscape(resource), combinedSchema(ids))
	}
	s.cachedForResource = &cachedResource{resource: resource, handle: h}
	s.mu.Unlock()

	return s.resolvedSchema(ctx, h)
}

func combinedSchema(ids []string) *UnresolvedSchema {
	refs := make([]map[string]string, len(ids))
	for i, id := range ids {
		refs[i] = map[string]string{"$ref": id}
	}
	raw, _ := json.Marshal(map[string]any{"allOf": refs})
	return ParseSchemaContent("", string(raw))
}

// GetSchemaURIsForResource lists the schema URIs associated with resource,
// in association order without duplicates.
func (s *Service) GetSchemaURIsForResource(resource string) []string {
	normalized := normalizeResourceForMatching(resource)

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	seen := make(map[string]bool)
	for _, a := range s.associations {
		if !a.matches(normalized) {
			continue
		}
		for _, id := range a.uris {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// OnResourceChange drops the cached schema for uri and for every schema
// that depends on it, directly or transitively. It reports whether any
// loaded schema was dropped.
func (s *Service) OnResourceChange(uri string) bool {
	uri = normalizeID(uri)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedForResource = nil

	all := make([]*schemaHandle, 0, len(s.handles))
	for _, h := range s.handles {
		all = append(all, h)
	}

	changed := false
	toWalk := []string{uri}
	for len(toWalk) > 0 {
		curr := toWalk[len(toWalk)-1]
		toWalk = toWalk[:len(toWalk)-1]
		for i, h := range all {
			if h == nil {
				continue
			}
			if _, dep := h.dependencies[curr]; h.uri != curr && !dep {
				continue
			}
			if h.uri != curr {
				toWalk = append(toWalk, h.uri)
			}
			if h.clear() {
				changed = true
			}
			all[i] = nil
		}
	}
	if changed {
		invalidations.Inc()
		s.logger.Debug("schema %s changed, dependents dropped", uri)
	}
	return changed
}

// Dependencies returns the URIs the cached schema for uri references.
func (s *Service) Dependencies(uri string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.handles[normalizeID(uri)]
	if h == nil {
		return nil
	}
	deps := make([]string, 0, len(h.dependencies))
	for d := range h.dependencies {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	return deps
}

func (s *Service) getOrAddHandle(uri string) *schemaHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrAddHandleLocked(uri)
}

func (s *Service) getOrAddHandleLocked(uri string) *schemaHandle {
	if h, ok := s.handles[uri]; ok {
		return h
	}
	return s.addHandleLocked(uri, nil)
}

func (s *Service) addHandleLocked(uri string, unresolved *UnresolvedSchema) *schemaHandle {
	h := newHandle(uri, unresolved)
	s.handles[uri] = h
	return h
}

func (s *Service) addDependency(h *schemaHandle, uri string) {
	s.mu.Lock()
	h.dependencies[uri] = struct{}{}
	s.mu.Unlock()
}

// unresolvedSchema returns the handle's document, loading it once no
// matter how many callers ask concurrently.
func (s *Service) unresolvedSchema(ctx context.Context, h *schemaHandle) (*UnresolvedSchema, error) {
	s.mu.Lock()
	if u := h.unresolved; u != nil {
		s.mu.Unlock()
		cacheRequests.WithLabelValues("unresolved", "hit").Inc()
		return u, nil
	}
	gen := h.gen
	s.mu.Unlock()
	cacheRequests.WithLabelValues("unresolved", "miss").Inc()

	key := fmt.Sprintf("load:%d:%d", h.id, gen)
	ch := s.group.DoChan(key, func() (any, error) {
		u := s.loadSchema(s.baseCtx, h.uri)
		s.mu.Lock()
		defer s.mu.Unlock()
		if h.gen == gen {
			if h.unresolved == nil {
				h.unresolved = u
			}
			return h.unresolved, nil
		}
		return u, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val.(*UnresolvedSchema), nil
	}
}

// resolvedSchema returns the handle's resolved schema. Until the handle is
// invalidated every call returns the same *ResolvedSchema.
func (s *Service) resolvedSchema(ctx context.Context, h *schemaHandle) (*ResolvedSchema, error) {
	s.mu.Lock()
	if r := h.resolved; r != nil {
		s.mu.Unlock()
		cacheRequests.WithLabelValues("resolved", "hit").Inc()
		return r, nil
	}
	gen := h.gen
	s.mu.Unlock()
	cacheRequests.WithLabelValues("resolved", "miss").Inc()

	key := fmt.Sprintf("resolve:%d:%d", h.id, gen)
	ch := s.group.DoChan(key, func() (any, error) {
		unresolved, err := s.unresolvedSchema(s.baseCtx, h)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		resolved := s.resolveSchemaContent(s.baseCtx, unresolved, h)
		resolveDuration.Observe(time.Since(start).Seconds())

		s.mu.Lock()
		defer s.mu.Unlock()
		if h.gen == gen {
			if h.resolved == nil {
				h.resolved = resolved
			}
			return h.resolved, nil
		}
		return resolved, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ResolvedSchema), nil
	}
}

func (s *Service) loadSchema(ctx context.Context, uri string) *UnresolvedSchema {
	if s.fetch == nil {
		return &UnresolvedSchema{
			Schema: &Schema{},
			Errors: []string{fmt.Sprintf("Unable to load schema from '%s'. No schema request service available", uri)},
		}
	}
	if s.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	content, err := s.fetch(ctx, uri)
	loadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		loads.WithLabelValues("error").Inc()
		s.logger.Warn("schema load failed: %s: %v", uri, err)
		return &UnresolvedSchema{
			Schema: &Schema{},
			Errors: []string{fmt.Sprintf("Unable to load schema from '%s': %s.", uri, strings.TrimSuffix(err.Error(), "."))},
		}
	}
	loads.WithLabelValues("ok").Inc()
	s.logger.Debug("schema loaded: %s (%d bytes)", uri, len(content))
	return ParseSchemaContent(uri, content)
}

// ParseSchemaContent decodes schema text. Comments and trailing commas are
// accepted; problems are recorded as errors on the result.
func ParseSchemaContent(uri, content string) *UnresolvedSchema {
	if strings.TrimSpace(content) == "" {
		return &UnresolvedSchema{
			Schema: &Schema{},
			Errors: []string{fmt.Sprintf("Unable to load schema from '%s': No content.", uri)},
		}
	}

	var errs []string
	var perrs []jsonc.ParseError
	value := jsonc.Parse(content, &perrs, jsonc.ParseOptions{AllowTrailingComma: true})
	if len(perrs) > 0 {
		errs = append(errs, fmt.Sprintf("Unable to parse content from '%s': Parse error at offset %d.", uri, perrs[0].Offset))
	}
	switch value.(type) {
	case map[string]any, bool:
	default:
		if len(errs) == 0 {
			errs = append(errs, fmt.Sprintf("Schema content from '%s' must be an object or boolean.", uri))
		}
		value = map[string]any{}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return &UnresolvedSchema{Schema: &Schema{}, Errors: append(errs, err.Error())}
	}
	schema, err := Parse(raw)
	if err != nil {
		return &UnresolvedSchema{
			Schema: &Schema{},
			Errors: append(errs, fmt.Sprintf("Unable to parse content from '%s': %v", uri, err)),
		}
	}
	return &UnresolvedSchema{Schema: schema, Errors: errs, raw: raw}
}

func normalizeIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = normalizeID(id)
	}
	return out
}
