package ports

import "github.com/reglet-dev/reglet-fetch/domain/entities"

// ConfigParser parses raw configuration bytes into a host Config.
type ConfigParser interface {
	// Parse unmarshals bytes over DefaultConfig values.
	Parse(data []byte) (*entities.Config, error)
}
