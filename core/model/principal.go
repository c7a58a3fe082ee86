package model

// Role identifies what a principal is allowed to do and which emergencies it
// can respond to.
type Role string

const (
	RoleUser        Role = "user"
	RoleHospital    Role = "hospital"
	RolePolice      Role = "police"
	RoleFirefighter Role = "firefighter"
	RoleTraffic     Role = "traffic"
	RoleAdmin       Role = "admin"
)

// Responder reports whether the role is eligible to receive assignments.
func (r Role) Responder() bool {
	switch r {
	case RoleHospital, RolePolice, RoleFirefighter:
		return true
	default:
		return false
	}
}

// Principal is an authenticated identity. Location is nil until the first
// LOCATION_UPDATE is received; the store mirrors the last known coordinates
// for offline matching.
type Principal struct {
	ID          string
	Role        Role
	DisplayName string
	Phone       string
	Location    *Coordinate
}

// HasLocation reports whether a last-known location is available.
func (p Principal) HasLocation() bool { return p.Location != nil }
