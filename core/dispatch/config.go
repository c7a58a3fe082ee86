package dispatch

// Config defines dispatch-related settings.
type Config struct {
	// RadiusMeters bounds bystander notification distance, boundary
	// inclusive (d <= radius).
	RadiusMeters float64 `json:"radius_meters"`
	// QuorumThreshold is the number of true votes promoting PENDING to
	// ACTIVE.
	QuorumThreshold int `json:"quorum_threshold"`
	// LockLeaseSeconds bounds how long an unanswered assignment lock is
	// held before the sweeper reclaims it. Zero disables the sweeper.
	LockLeaseSeconds int `json:"lock_lease_seconds"`
	// Roles extends or overrides the emergency type to responder role
	// mapping.
	Roles map[string][]string `json:"roles"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.RadiusMeters <= 0 {
		c.RadiusMeters = 10_000
	}
	if c.QuorumThreshold <= 0 {
		c.QuorumThreshold = 1
	}
}
