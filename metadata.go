package docmap

import "reflect"

// MetadataRegistry is the black-box lookup service mapping entity types to
// their persistence metadata. The second return reports presence; absence of
// a descriptor is a valid outcome here, never an error.
type MetadataRegistry interface {
	PersistentEntity(entityType reflect.Type) (PersistentEntity, bool)
}

// PersistentEntity describes how one entity type maps to document-store
// addressing and identification. Descriptors are immutable after
// registration.
type PersistentEntity interface {
	Type() reflect.Type
	Name() string

	// IDProperty returns the property designated as the identifier, or
	// false when the type declares none.
	IDProperty() (PersistentProperty, bool)

	// PropertyAccessor binds the descriptor to a concrete instance for
	// side-effect-free property reads.
	PropertyAccessor(instance any) PropertyAccessor

	// URITemplate and CollectionTemplate return the configured address
	// templates, empty when unset.
	URITemplate() string
	CollectionTemplate() string
}

// PersistentProperty is the metadata for a single property. Owner is a
// back-reference to the declaring descriptor, never an ownership edge.
type PersistentProperty interface {
	Name() string
	Owner() PersistentEntity
}

// PropertyAccessor reads property values from the instance it was bound to.
type PropertyAccessor interface {
	Property(property PersistentProperty) (any, bool)
}

// IDPropertyOf returns the identifier property descriptor for entityType.
// Absent when the type is unregistered or declares no identifier property;
// this lookup never fails.
func IDPropertyOf(entityType reflect.Type, registry MetadataRegistry) (PersistentProperty, bool) {
	entity, ok := registry.PersistentEntity(entityType)
	if !ok {
		return nil, false
	}
	return entity.IDProperty()
}

// PersistentEntityOf returns the descriptor for entityType, failing with
// *UnknownEntityError when the registry holds none. Callers always get a
// usable descriptor or an explicit failure.
func PersistentEntityOf(entityType reflect.Type, registry MetadataRegistry) (PersistentEntity, error) {
	entity, ok := registry.PersistentEntity(entityType)
	if !ok {
		return nil, &UnknownEntityError{Type: entityType}
	}
	return entity, nil
}

// RetrieveIdentifier reads the identifier value of instance through the
// registry's metadata. Fails with *MissingIdentifierError when the runtime
// type declares no identifier property and with *UnknownEntityError when no
// descriptor exists for it. An unset identifier field reads as its zero
// value, not as an error.
func RetrieveIdentifier(instance any, registry MetadataRegistry) (any, error) {
	entityType := reflect.TypeOf(instance)

	idProperty, ok := IDPropertyOf(entityType, registry)
	if !ok {
		return nil, &MissingIdentifierError{Type: entityType}
	}

	entity, err := PersistentEntityOf(entityType, registry)
	if err != nil {
		return nil, err
	}

	value, _ := entity.PropertyAccessor(instance).Property(idProperty)
	return value, nil
}
