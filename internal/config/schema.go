package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/strata/store"
)

// Schema declares kinds for tools that have no compiled-in models.
//
//	kinds:
//	  - name: User
//	    fields:
//	      - {name: email, type: string, unique_key: true}
//	      - {name: age, type: integer, min: 0}
//	      - {name: manager, type: reference, kind: User}
type Schema struct {
	Kinds []KindSchema `yaml:"kinds"`
}

// KindSchema declares one kind.
type KindSchema struct {
	Name   string        `yaml:"name"`
	Fields []FieldSchema `yaml:"fields"`
}

// FieldSchema declares one field. Type is one of string, text, integer,
// float, boolean, datetime and reference.
type FieldSchema struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Kind      string `yaml:"kind,omitempty"`
	UniqueKey bool   `yaml:"unique_key,omitempty"`
	Required  bool   `yaml:"required,omitempty"`
	NotNull   bool   `yaml:"not_null,omitempty"`
	Unindexed bool   `yaml:"unindexed,omitempty"`
	Default   any    `yaml:"default,omitempty"`
	Choices   []any  `yaml:"choices,omitempty"`

	MaxLength  int    `yaml:"max_length,omitempty"`
	Multiline  bool   `yaml:"multiline,omitempty"`
	Min        *int64 `yaml:"min,omitempty"`
	Max        *int64 `yaml:"max,omitempty"`
	AutoNow    bool   `yaml:"auto_now,omitempty"`
	AutoNowAdd bool   `yaml:"auto_now_add,omitempty"`
}

// ParseSchema decodes a schema document. Unknown keys are rejected.
func ParseSchema(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Schema
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse schema: %w", store.ErrConfiguration, err)
	}
	return &s, nil
}

// LoadSchema reads and decodes the schema file at path.
func LoadSchema(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open schema: %w", store.ErrConfiguration, err)
	}
	defer f.Close()
	return ParseSchema(f)
}

// Define registers every kind of the schema on registry.
func (s *Schema) Define(registry *store.Registry) error {
	for _, k := range s.Kinds {
		fields := make([]*store.Field, 0, len(k.Fields))
		for _, fs := range k.Fields {
			f, err := fs.build()
			if err != nil {
				return fmt.Errorf("kind %q: %w", k.Name, err)
			}
			fields = append(fields, f)
		}
		if _, err := registry.Define(k.Name, fields...); err != nil {
			return err
		}
	}
	return nil
}

func (fs FieldSchema) build() (*store.Field, error) {
	var opts []store.FieldOption
	if fs.UniqueKey {
		opts = append(opts, store.UniqueKey())
	}
	if fs.Required {
		opts = append(opts, store.Required())
	}
	if fs.NotNull {
		opts = append(opts, store.NotNull())
	}
	if fs.Unindexed {
		opts = append(opts, store.Unindexed())
	}
	var typ store.FieldType
	switch fs.Type {
	case "string", "":
		typ = store.StringType{MaxLength: fs.MaxLength, Multiline: fs.Multiline}
	case "text":
		typ = store.TextType{}
	case "integer":
		typ = store.IntegerType{Min: fs.Min, Max: fs.Max}
	case "float":
		typ = store.FloatType{}
	case "boolean":
		typ = store.BooleanType{}
	case "datetime":
		typ = store.DateTimeType{AutoNow: fs.AutoNow, AutoNowAdd: fs.AutoNowAdd}
	case "reference":
		typ = store.ReferenceType{Kind: fs.Kind}
	default:
		return nil, fmt.Errorf("%w: field %q has unknown type %q", store.ErrConfiguration, fs.Name, fs.Type)
	}

	// YAML scalars arrive as strings or numbers; decode them like stored values.
	if fs.Default != nil {
		v, err := typ.Decode(fs.Default)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q default: %w", store.ErrConfiguration, fs.Name, err)
		}
		opts = append(opts, store.Default(v))
	}
	if len(fs.Choices) > 0 {
		choices := make([]any, len(fs.Choices))
		for i, c := range fs.Choices {
			v, err := typ.Decode(c)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q choice %v: %w", store.ErrConfiguration, fs.Name, c, err)
			}
			choices[i] = v
		}
		opts = append(opts, store.Choices(choices...))
	}
	return store.NewField(fs.Name, typ, opts...), nil
}

func resolvePath(configFile, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(configFile), path)
}
