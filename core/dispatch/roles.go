package dispatch

import "github.com/domtech/lifeline/core/model"

// defaultRoles maps an emergency type to the responder roles eligible for it.
// Unmapped types dispatch to nobody.
var defaultRoles = map[model.EmergencyType][]model.Role{
	model.EmergencyAccident: {model.RoleHospital, model.RolePolice},
	model.EmergencyFire:     {model.RoleFirefighter},
}

// RoleMap resolves emergency types to eligible responder roles. Configured
// overrides extend or replace the built-in mapping.
type RoleMap struct {
	roles map[model.EmergencyType][]model.Role
}

// NewRoleMap builds a RoleMap from the defaults plus the configured
// overrides, keyed by emergency type string.
func NewRoleMap(overrides map[string][]string) RoleMap {
	m := make(map[model.EmergencyType][]model.Role, len(defaultRoles)+len(overrides))
	for t, rs := range defaultRoles {
		m[t] = rs
	}
	for t, names := range overrides {
		rs := make([]model.Role, 0, len(names))
		for _, n := range names {
			rs = append(rs, model.Role(n))
		}
		m[model.EmergencyType(t)] = rs
	}
	return RoleMap{roles: m}
}

// RolesFor returns the eligible roles for the emergency type. An empty slice
// means no responder can serve it.
func (m RoleMap) RolesFor(t model.EmergencyType) []model.Role {
	return m.roles[t]
}
