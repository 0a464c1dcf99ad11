// Package parser decodes host configuration files.
package parser

import (
	"bytes"
	"errors"
	"io"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	domainerrors "github.com/reglet-dev/reglet-fetch/domain/errors"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"gopkg.in/yaml.v3"
)

// YamlConfigParser implements ConfigParser for YAML.
type YamlConfigParser struct {
	strict bool
}

// NewYamlConfigParser creates a new YamlConfigParser.
// A strict parser rejects unknown fields.
func NewYamlConfigParser(strict bool) ports.ConfigParser {
	return &YamlConfigParser{strict: strict}
}

// Parse unmarshals YAML bytes over the default configuration.
// Empty input yields the defaults.
func (p *YamlConfigParser) Parse(data []byte) (*entities.Config, error) {
	cfg := entities.DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.strict)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &domainerrors.WireFormatError{Operation: "unmarshal", Type: "Config", Err: err}
	}
	return &cfg, nil
}
