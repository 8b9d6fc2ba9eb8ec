package docmap

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-docmap/pkg/audit"
)

var (
	// ErrNilPrototype is returned when Register receives a nil prototype.
	ErrNilPrototype = errors.New("docmap: nil prototype provided")
	// ErrNotStruct is returned when the prototype does not resolve to a
	// struct type.
	ErrNotStruct = errors.New("docmap: prototype is not a struct type")
	// ErrUnknownIDField is returned when an explicit id field name does not
	// exist on the prototype struct.
	ErrUnknownIDField = errors.New("docmap: configured id field not found")
	// ErrConflictingRegistration indicates an attempt to re-register a type
	// with different mapping settings.
	ErrConflictingRegistration = errors.New("docmap: conflicting entity registration")
)

// idTag marks the identifier property on entity structs, e.g.
//
//	type Person struct {
//	    ID string `docmap:"id"`
//	}
const idTag = "docmap"

// EntityOption configures one entity registration.
type EntityOption func(*entitySettings)

type entitySettings struct {
	name       string
	uri        string
	collection string
	idField    string
}

// WithEntityName overrides the registered entity name (defaults to the
// struct type name).
func WithEntityName(name string) EntityOption {
	return func(s *entitySettings) {
		s.name = name
	}
}

// WithURI sets the document URI template for the entity.
func WithURI(template string) EntityOption {
	return func(s *entitySettings) {
		s.uri = template
	}
}

// WithCollection sets the collection name template for the entity.
func WithCollection(template string) EntityOption {
	return func(s *entitySettings) {
		s.collection = template
	}
}

// WithIDField names the struct field serving as identifier, bypassing tag
// and name based detection.
func WithIDField(field string) EntityOption {
	return func(s *entitySettings) {
		s.idField = field
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// RegistryWithAuditHooks attaches hooks notified on each registration.
func RegistryWithAuditHooks(hooks audit.Hooks) RegistryOption {
	return func(r *Registry) {
		r.emitter = audit.NewEmitter(hooks, audit.Config{Enabled: true})
	}
}

// Registry is a reflection-backed MetadataRegistry. Registration happens at
// startup; lookups are lock-free reads over a sync.Map.
type Registry struct {
	// mu guards write-side consistency and the counter.
	mu      sync.Mutex
	m       sync.Map // map[reflect.Type]*entity
	count   int
	emitter *audit.Emitter
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register reflects over prototype (a struct value or pointer to one) and
// records its mapping metadata. Re-registering the same type with identical
// settings is idempotent; different settings fail with
// ErrConflictingRegistration.
func (r *Registry) Register(prototype any, opts ...EntityOption) (PersistentEntity, error) {
	if prototype == nil {
		return nil, ErrNilPrototype
	}
	t := structType(reflect.TypeOf(prototype))
	if t == nil {
		return nil, ErrNotStruct
	}

	settings := entitySettings{}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	if settings.name == "" {
		settings.name = t.Name()
	}

	candidate, err := newEntity(t, settings)
	if err != nil {
		return nil, err
	}

	// Fast read path: idempotency / conflict check without locking.
	if existing, ok := r.m.Load(t); ok {
		return r.checkExisting(existing.(*entity), candidate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under lock in case another goroutine stored meanwhile.
	if existing, ok := r.m.Load(t); ok {
		return r.checkExisting(existing.(*entity), candidate)
	}

	r.m.Store(t, candidate)
	r.count++
	r.emitRegistered(candidate)
	return candidate, nil
}

func (r *Registry) checkExisting(existing, candidate *entity) (PersistentEntity, error) {
	if existing.settings == candidate.settings {
		return existing, nil
	}
	return nil, ErrConflictingRegistration
}

// PersistentEntity implements MetadataRegistry. Pointer types resolve to
// their element struct type.
func (r *Registry) PersistentEntity(entityType reflect.Type) (PersistentEntity, bool) {
	t := structType(entityType)
	if t == nil {
		return nil, false
	}
	if v, ok := r.m.Load(t); ok {
		return v.(*entity), true
	}
	return nil, false
}

// Entries returns a snapshot of registered descriptors sorted by name.
func (r *Registry) Entries() []PersistentEntity {
	entries := make([]PersistentEntity, 0, r.Count())
	r.m.Range(func(_, value any) bool {
		entries = append(entries, value.(*entity))
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}

// Count returns the number of registered entities.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Registry) emitRegistered(e *entity) {
	if !r.emitter.Enabled() {
		return
	}
	_ = r.emitter.Emit(context.Background(), audit.Event{
		Verb:       "register",
		ObjectType: e.Name(),
		ObjectID:   e.Type().String(),
		Metadata: map[string]any{
			"uri":        e.URITemplate(),
			"collection": e.CollectionTemplate(),
		},
	})
}

// structType unwraps pointers and reports the underlying struct type, nil
// when t is not (a pointer to) a struct.
func structType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// entity is the concrete PersistentEntity produced by Registry.
type entity struct {
	typ      reflect.Type
	settings entitySettings
	id       *property
}

func newEntity(t reflect.Type, settings entitySettings) (*entity, error) {
	e := &entity{typ: t, settings: settings}

	field, ok, err := findIDField(t, settings.idField)
	if err != nil {
		return nil, err
	}
	if ok {
		e.id = &property{name: field.Name, index: field.Index, owner: e}
	}
	return e, nil
}

// findIDField locates the identifier field: an explicit override first,
// then a `docmap:"id"` tag, then a field literally named ID.
func findIDField(t reflect.Type, override string) (reflect.StructField, bool, error) {
	if override != "" {
		field, ok := t.FieldByName(override)
		if !ok || field.PkgPath != "" {
			return reflect.StructField{}, false, ErrUnknownIDField
		}
		return field, true, nil
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		if tagged := field.Tag.Get(idTag); tagged != "" {
			for _, part := range strings.Split(tagged, ",") {
				if strings.TrimSpace(part) == "id" {
					return field, true, nil
				}
			}
		}
	}
	if field, ok := t.FieldByName("ID"); ok && field.PkgPath == "" {
		return field, true, nil
	}
	return reflect.StructField{}, false, nil
}

func (e *entity) Type() reflect.Type { return e.typ }

func (e *entity) Name() string { return e.settings.name }

func (e *entity) IDProperty() (PersistentProperty, bool) {
	if e.id == nil {
		return nil, false
	}
	return e.id, true
}

func (e *entity) PropertyAccessor(instance any) PropertyAccessor {
	return reflectAccessor{value: reflect.ValueOf(instance)}
}

func (e *entity) URITemplate() string { return e.settings.uri }

func (e *entity) CollectionTemplate() string { return e.settings.collection }

// property is the concrete PersistentProperty for struct fields.
type property struct {
	name  string
	index []int
	owner *entity
}

func (p *property) Name() string { return p.name }

func (p *property) Owner() PersistentEntity { return p.owner }

// reflectAccessor reads struct fields from a bound instance.
type reflectAccessor struct {
	value reflect.Value
}

func (a reflectAccessor) Property(prop PersistentProperty) (any, bool) {
	p, ok := prop.(*property)
	if !ok {
		return nil, false
	}
	v := a.value
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return nil, false
	}
	field := v.FieldByIndex(p.index)
	if !field.IsValid() {
		return nil, false
	}
	return field.Interface(), true
}
