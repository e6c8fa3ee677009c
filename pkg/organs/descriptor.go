package organs

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Descriptor is a host-advertised capability. IsIdempotent marks
// read-only capabilities that may legally be served from cache during
// fallback; billable write capabilities must leave it false.
type Descriptor struct {
	CapabilityID string `json:"capability_id"`
	Endpoint     string `json:"endpoint"`
	ABIVersion   string `json:"abi_version"`
	IsIdempotent bool   `json:"is_idempotent"`
}

// CompatibleWith checks whether this descriptor satisfies the ABI version
// a genome organ was evolved against. Compatibility is caret semantics:
// same major version, host at or above the required minor/patch.
func (d Descriptor) CompatibleWith(required string) (bool, error) {
	constraint, err := semver.NewConstraint("^" + required)
	if err != nil {
		return false, fmt.Errorf("abi constraint %q: %w", required, err)
	}
	served, err := semver.NewVersion(d.ABIVersion)
	if err != nil {
		return false, fmt.Errorf("descriptor abi version %q: %w", d.ABIVersion, err)
	}
	return constraint.Check(served), nil
}
