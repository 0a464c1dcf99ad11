package host

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/tetratelabs/wazero"

	"github.com/reglet-dev/reglet-fetch/domain/errors"
)

const (
	// ABIVersion is the version of the guest interface this host implements.
	ABIVersion = "1.0.0"

	// DefaultABIConstraint accepts guests built for any 1.x ABI.
	DefaultABIConstraint = "^1.0.0"

	// ABISection is the custom section a guest declares its ABI version in.
	ABISection = "reglet_fetch_abi"
)

func (c *executorConfig) compileABIConstraint() error {
	if c.abiConstraint == "" {
		c.abiConstraints = nil
		return nil
	}
	cs, err := semver.NewConstraint(c.abiConstraint)
	if err != nil {
		return &errors.ConfigError{Field: "abi_constraint", Err: err}
	}
	c.abiConstraints = cs
	return nil
}

// checkABI reads the guest's declared ABI version and matches it against the
// configured constraint. It returns the declared version, if any.
func (c *executorConfig) checkABI(name string, compiled wazero.CompiledModule) (string, error) {
	declared := ""
	for _, section := range compiled.CustomSections() {
		if section.Name() == ABISection {
			declared = strings.TrimSpace(string(section.Data()))
			break
		}
	}

	if c.abiConstraints == nil {
		return declared, nil
	}
	if declared == "" {
		return "", &errors.ABIError{Module: name, Constraint: c.abiConstraint, Err: fmt.Errorf("missing %s custom section", ABISection)}
	}

	v, err := semver.NewVersion(declared)
	if err != nil {
		return "", &errors.ABIError{Module: name, Version: declared, Constraint: c.abiConstraint, Err: err}
	}
	if !c.abiConstraints.Check(v) {
		return "", &errors.ABIError{Module: name, Version: declared, Constraint: c.abiConstraint}
	}
	return declared, nil
}
