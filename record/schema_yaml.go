package record

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type yamlColumn struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// ParseSchema builds a Schema from its YAML description: a list of
// {name, kind} pairs, where kind is a Kind name ("boolean", "integer",
// "float", "text", "timestamp", or "structured").
func ParseSchema(in []byte) (Schema, error) {
	var cols []yamlColumn
	if err := yaml.UnmarshalStrict(in, &cols); err != nil {
		return nil, errors.Wrap(err, "parsing schema YAML")
	} else if len(cols) == 0 {
		return nil, errors.New("schema has no columns")
	}

	var schema = make(Schema, len(cols))
	for i, c := range cols {
		if c.Name == "" {
			return nil, errors.Errorf("schema column %d: name is required", i)
		}
		var kind, err = KindFromString(c.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "schema column %s", c.Name)
		}
		schema[i] = Column{Name: c.Name, Kind: kind}
	}
	return schema, nil
}

// LoadSchema reads and parses a Schema from a YAML file.
func LoadSchema(path string) (Schema, error) {
	var in, err = os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading schema %s", path)
	}
	return ParseSchema(in)
}
