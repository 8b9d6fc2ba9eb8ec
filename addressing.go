package docmap

import (
	"reflect"

	"github.com/google/uuid"

	"github.com/goliatone/go-docmap/internal/coerce"
)

// DefaultURITemplate addresses documents under their type name when an
// entity carries no URI template of its own.
const DefaultURITemplate = "/content/#{entityClass.simpleName}/#{id}.xml"

// OperationOptions carries per-operation addressing overrides supplied by
// the repository layer.
type OperationOptions struct {
	// DefaultCollection applies when the entity declares no collection
	// template.
	DefaultCollection string

	// IDInPropertyFragment marks identifiers stored inside a property
	// fragment rather than the document root. Addressing carries the flag
	// through; its readers live in the surrounding store layer.
	IDInPropertyFragment bool
}

// Addresser combines a resolver and a metadata registry into concrete
// document addressing: collection names and document URIs per entity
// instance.
type Addresser struct {
	resolver *Resolver
	registry MetadataRegistry
}

// NewAddresser constructs an Addresser. A nil resolver gets the default
// engine and cache.
func NewAddresser(resolver *Resolver, registry MetadataRegistry) *Addresser {
	if resolver == nil {
		resolver = NewResolver()
	}
	return &Addresser{resolver: resolver, registry: registry}
}

// CollectionOf resolves the collection name for entity. The entity's own
// collection template wins over opts.DefaultCollection; when neither is set
// the collection is empty, a valid outcome.
func (a *Addresser) CollectionOf(entityValue any, opts OperationOptions) (string, error) {
	t := reflect.TypeOf(entityValue)
	descriptor, err := PersistentEntityOf(t, a.registry)
	if err != nil {
		return "", err
	}

	template := descriptor.CollectionTemplate()
	if template == "" {
		template = opts.DefaultCollection
	}
	if template == "" {
		return "", nil
	}
	return a.resolver.Resolve(template, a.contextFor(t, entityValue))
}

// URIOf resolves the document URI for entity, falling back to
// DefaultURITemplate when the entity declares none.
func (a *Addresser) URIOf(entityValue any) (string, error) {
	t := reflect.TypeOf(entityValue)
	descriptor, err := PersistentEntityOf(t, a.registry)
	if err != nil {
		return "", err
	}

	template := descriptor.URITemplate()
	if template == "" {
		template = DefaultURITemplate
	}
	return a.resolver.Resolve(template, a.contextFor(t, entityValue))
}

// NewDocumentURI resolves the document URI for an entity that may not have
// an identifier yet: an unset identifier is replaced by a generated UUID for
// the duration of the resolution.
func (a *Addresser) NewDocumentURI(entityValue any) (string, error) {
	t := reflect.TypeOf(entityValue)
	descriptor, err := PersistentEntityOf(t, a.registry)
	if err != nil {
		return "", err
	}

	template := descriptor.URITemplate()
	if template == "" {
		template = DefaultURITemplate
	}

	ctx := ResolutionContext{
		EntityType: t,
		Entity:     entityValue,
		ID: func() any {
			value, err := RetrieveIdentifier(entityValue, a.registry)
			if err != nil || coerce.IsZero(value) {
				return uuid.NewString()
			}
			return value
		},
	}
	return a.resolver.Resolve(template, ctx)
}

// contextFor binds the entity and a lazy identifier read into a resolution
// context. Identifier lookup failures surface as an absent id variable, not
// as a resolution failure; templates that never mention id never trigger
// the read.
func (a *Addresser) contextFor(t reflect.Type, entityValue any) ResolutionContext {
	return ResolutionContext{
		EntityType: t,
		Entity:     entityValue,
		ID: func() any {
			value, err := RetrieveIdentifier(entityValue, a.registry)
			if err != nil {
				return nil
			}
			return value
		},
	}
}
