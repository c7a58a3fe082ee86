package model

import "time"

// AlertStatus is the lifecycle state of an alert. Transitions are linear:
// PENDING -> ACTIVE -> IN_PROGRESS -> RESOLVED. There is no regression and
// RESOLVED is terminal.
type AlertStatus string

const (
	StatusPending    AlertStatus = "PENDING"
	StatusActive     AlertStatus = "ACTIVE"
	StatusInProgress AlertStatus = "IN_PROGRESS"
	StatusResolved   AlertStatus = "RESOLVED"
)

var statusOrder = map[AlertStatus]int{
	StatusPending:    0,
	StatusActive:     1,
	StatusInProgress: 2,
	StatusResolved:   3,
}

// CanTransition reports whether the status may move to next. Only forward
// single steps are allowed, except RESOLVED which may be reached from any
// non-terminal state.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	cur, ok := statusOrder[s]
	if !ok {
		return false
	}
	n, ok := statusOrder[next]
	if !ok {
		return false
	}
	if next == StatusResolved {
		return cur < n
	}
	return n == cur+1
}

// Terminal reports whether the status admits no further transitions.
func (s AlertStatus) Terminal() bool { return s == StatusResolved }

// EmergencyType classifies an alert. The set is open: unknown values are
// carried through verbatim and simply map to no responder roles.
type EmergencyType string

const (
	EmergencyAccident EmergencyType = "ACCIDENT"
	EmergencyFire     EmergencyType = "FIRE"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Alert is a single emergency report and its lifecycle state. Alerts are
// never deleted, only terminalized at RESOLVED.
type Alert struct {
	ID                  string
	CreatorID           string
	CreatorName         string
	CreatorPhone        string
	Message             string
	Latitude            float64
	Longitude           float64
	EmergencyType       EmergencyType
	Status              AlertStatus
	AssignedResponderID string
	TrafficID           string
	RoutePath           []Coordinate
	CreatedAt           time.Time
}
