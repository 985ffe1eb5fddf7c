package m2m

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Relations is a list of relations decoded from a YAML mapping of relation
// names to relation properties. The mapping order is kept.
//
//	tags:
//	  modelClass: Tag
//	  attribute: tagIds
//	  pkColumnName: id
//	  extraColumns: {type: review}
//	  additionalUnlinkCondition: {type: review}
type Relations []*Relation

// UnmarshalYAML implements yaml.Unmarshaler.
func (rs *Relations) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.DocumentNode && len(value.Content) == 1 {
		value = value.Content[0]
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("m2m: line %d: relations must be a mapping", value.Line)
	}
	out := make(Relations, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		name := value.Content[i].Value
		rel := &Relation{}
		if err := value.Content[i+1].Decode(rel); err != nil {
			return fmt.Errorf("m2m: relation %q: %w", name, err)
		}
		rel.Name = name
		out = append(out, rel)
	}
	*rs = out
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler. The unlink condition
// accepts false or null for "no condition".
func (r *Relation) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Target          string         `yaml:"modelClass"`
		Attribute       string         `yaml:"attribute"`
		KeyColumn       string         `yaml:"pkColumnName"`
		ExtraColumns    map[string]any `yaml:"extraColumns"`
		DeleteTargets   bool           `yaml:"deleteAllRelatedEntriesBeforeSave"`
		UnlinkCondition yaml.Node      `yaml:"additionalUnlinkCondition"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*r = Relation{
		Target:        raw.Target,
		Attribute:     raw.Attribute,
		KeyColumn:     raw.KeyColumn,
		ExtraColumns:  raw.ExtraColumns,
		DeleteTargets: raw.DeleteTargets,
	}
	cond := &raw.UnlinkCondition
	switch {
	case cond.Kind == 0:
	case cond.Kind == yaml.ScalarNode && (cond.ShortTag() == "!!null" || cond.ShortTag() == "!!bool" && cond.Value == "false"):
	case cond.Kind == yaml.MappingNode:
		if err := cond.Decode(&r.UnlinkCondition); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: %s must be a mapping or false", cond.Line, FieldUnlinkCondition)
	}
	return nil
}

// ReadRelations decodes relations from a YAML document.
func ReadRelations(r io.Reader) (Relations, error) {
	var rs Relations
	if err := yaml.NewDecoder(r).Decode(&rs); err != nil {
		if err == io.EOF {
			return nil, NewConfigError("", "relations")
		}
		return nil, err
	}
	return rs, nil
}
