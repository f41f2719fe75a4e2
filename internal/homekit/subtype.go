package homekit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Role distinguishes what a service is backed by on the controller.
type Role string

// Service roles.
const (
	RolePlain         Role = ""
	RoleGlobalSwitch  Role = "G"
	RoleGlobalDimmer  Role = "D"
	RoleScene         Role = "SC"
	RoleSecurity      Role = "SE"
	RoleHeatingZone   Role = "HZ"
	RoleClimateZone   Role = "CZ"
	RoleRemoteButton  Role = "RC"
	RoleVirtualButton Role = "VB"
	RoleDoorbell      Role = "DB"
)

// Pseudo reports whether the role is backed by something other than a
// physical device (variables, scenes, panels).
func (r Role) Pseudo() bool {
	switch r {
	case RoleGlobalSwitch, RoleGlobalDimmer, RoleScene, RoleSecurity, RoleHeatingZone, RoleClimateZone:
		return true
	}
	return false
}

// Momentary reports whether writes to the role are stateless triggers.
func (r Role) Momentary() bool {
	return r == RoleScene || r == RoleVirtualButton
}

// Variant selects among sibling shapes of the same service kind.
type Variant string

// Service variants.
const (
	VariantNone        Variant = ""
	VariantBinaryCover Variant = "B"
	VariantSceneRemote Variant = "S"
	VariantKeyRemote   Variant = "K"
	VariantColourLight Variant = "C"
)

// ErrInvalidSubtype is returned when a subtype string cannot be parsed.
var ErrInvalidSubtype = errors.New("homekit: invalid subtype")

// SubtypeKey identifies one service instance among those a device exposes.
// Sub carries a virtual-button id, variable name, remote button index or
// central-scene key id.
type SubtypeKey struct {
	DeviceID int
	Sub      string
	Role     Role
	Variant  Variant
}

// String renders the key as "{deviceId}-{sub}-{role}-{variant}-".
func (k SubtypeKey) String() string {
	return fmt.Sprintf("%d-%s-%s-%s-", k.DeviceID, k.Sub, k.Role, k.Variant)
}

// ParseSubtype reverses SubtypeKey.String. Device ids, roles and variants
// never contain "-", so everything between the id and the role belongs to
// Sub, which may be a variable name containing dashes.
func ParseSubtype(s string) (SubtypeKey, error) {
	parts := strings.Split(s, "-")
	n := len(parts)
	if n < 5 || parts[n-1] != "" {
		return SubtypeKey{}, fmt.Errorf("%w: %q", ErrInvalidSubtype, s)
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return SubtypeKey{}, fmt.Errorf("%w: %q: device id: %v", ErrInvalidSubtype, s, err)
	}
	role, variant := Role(parts[n-3]), Variant(parts[n-2])
	if !knownRoles[role] || !knownVariants[variant] {
		return SubtypeKey{}, fmt.Errorf("%w: %q: unknown role or variant", ErrInvalidSubtype, s)
	}
	return SubtypeKey{
		DeviceID: id,
		Sub:      strings.Join(parts[1:n-3], "-"),
		Role:     role,
		Variant:  variant,
	}, nil
}

var knownRoles = map[Role]bool{
	RolePlain: true, RoleGlobalSwitch: true, RoleGlobalDimmer: true, RoleScene: true, RoleSecurity: true,
	RoleHeatingZone: true, RoleClimateZone: true, RoleRemoteButton: true, RoleVirtualButton: true, RoleDoorbell: true,
}

var knownVariants = map[Variant]bool{
	VariantNone: true, VariantBinaryCover: true, VariantSceneRemote: true, VariantKeyRemote: true, VariantColourLight: true,
}
