package docmap

import "encoding/json"

// EntityLister is the slice of a registry the manifest builder needs.
type EntityLister interface {
	Entries() []PersistentEntity
}

// Manifest is a JSON-serialisable snapshot of every registered mapping,
// intended for diagnostics and documentation.
type Manifest struct {
	Entities []EntityMapping `json:"entities"`
}

// EntityMapping is one entity's addressing metadata.
type EntityMapping struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	IDProperty string `json:"id_property,omitempty"`
	Collection string `json:"collection,omitempty"`
	URI        string `json:"uri,omitempty"`
}

// BuildManifest snapshots the registry. Entry order follows the lister's
// order, which for Registry is sorted by entity name.
func BuildManifest(registry EntityLister) Manifest {
	manifest := Manifest{Entities: []EntityMapping{}}
	if registry == nil {
		return manifest
	}
	for _, entry := range registry.Entries() {
		mapping := EntityMapping{
			Name:       entry.Name(),
			Type:       entry.Type().String(),
			Collection: entry.CollectionTemplate(),
			URI:        entry.URITemplate(),
		}
		if idProperty, ok := entry.IDProperty(); ok {
			mapping.IDProperty = idProperty.Name()
		}
		manifest.Entities = append(manifest.Entities, mapping)
	}
	return manifest
}

// ToJSON serialises the manifest.
func (m Manifest) ToJSON() ([]byte, error) {
	type alias Manifest
	return json.Marshal(alias(m))
}

// ManifestFromJSON deserialises a payload previously generated via ToJSON.
func ManifestFromJSON(payload []byte) (Manifest, error) {
	type alias Manifest
	var manifest alias
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return Manifest{}, err
	}
	return Manifest(manifest), nil
}
