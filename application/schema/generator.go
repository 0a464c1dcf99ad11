// Package schema generates JSON schemas for host configuration files.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
)

// durationPattern matches strings accepted by time.ParseDuration.
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// GenerateSchema creates a JSON schema (Draft 2020-12) from a Go struct.
// Durations are described as strings, the way YAML configs write them.
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
		Mapper:         mapType,
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// ConfigSchema returns the schema of the host configuration file.
func ConfigSchema() ([]byte, error) {
	return GenerateSchema(entities.Config{})
}

func mapType(t reflect.Type) *jsonschema.Schema {
	if t == reflect.TypeOf(time.Duration(0)) {
		return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
	}
	return nil
}
