// Package protocol defines the JSON envelopes exchanged over the duplex
// session channel. Every message carries a "type" discriminator.
package protocol

// Inbound message types.
const (
	TypeAuth              = "AUTH"
	TypeEmergency         = "EMERGENCY"
	TypeValidateResponse  = "VALIDATE_RESPONSE"
	TypeResponderResponse = "RESPONDER_RESPONSE"
	TypeLocationUpdate    = "LOCATION_UPDATE"
	TypeWaitingTime       = "WAITING_TIME"
	TypeSelectedRoute     = "SELECTED_ROUTE"
	TypeResolve           = "RESOLVE"
)

// Outbound message types.
const (
	TypeAuthSuccess             = "AUTH_SUCCESS"
	TypeAuthError               = "AUTH_ERROR"
	TypeValidateAlert           = "VALIDATE_ALERT"
	TypeEmergencyAssignment     = "EMERGENCY_ASSIGNMENT"
	TypeResponderAccepted       = "RESPONDER_ACCEPTED"
	TypeResponderLocationUpdate = "RESPONDER_LOCATION_UPDATE"
	TypeAlertResolved           = "ALERT_RESOLVED"
)

// Envelope is the inbound message shape. Fields are a union over all inbound
// types; pointer fields distinguish absent from zero values where the
// distinction matters.
type Envelope struct {
	Type          string      `json:"type"`
	Token         string      `json:"token,omitempty"`
	AlertID       string      `json:"alertId,omitempty"`
	Message       string      `json:"message,omitempty"`
	Latitude      *float64    `json:"latitude,omitempty"`
	Longitude     *float64    `json:"longitude,omitempty"`
	EmergencyType string      `json:"emergencyType,omitempty"`
	Vote          *bool       `json:"vote,omitempty"`
	Accept        *bool       `json:"accept,omitempty"`
	Time          float64     `json:"time,omitempty"`
	Coords        [][]float64 `json:"coordsFromResponder,omitempty"`
}

// UserInfo identifies a principal in outbound messages.
type UserInfo struct {
	ID    string  `json:"id"`
	Name  string  `json:"name,omitempty"`
	Phone string  `json:"phone,omitempty"`
	Role  string  `json:"role,omitempty"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// AuthSuccess confirms authentication.
type AuthSuccess struct {
	Type string   `json:"type"`
	User UserInfo `json:"user"`
}

// AuthError reports a rejected credential; the connection closes after it.
type AuthError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ValidateAlert asks a nearby bystander to confirm or deny an alert.
type ValidateAlert struct {
	Type          string  `json:"type"`
	AlertID       string  `json:"alertId"`
	Message       string  `json:"message"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	EmergencyType string  `json:"emergencyType"`
	Distance      float64 `json:"distance"`
}

// EmergencyAssignment offers an alert to a responder.
type EmergencyAssignment struct {
	Type          string   `json:"type"`
	AlertID       string   `json:"alertId"`
	Name          string   `json:"name,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Message       string   `json:"message"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	EmergencyType string   `json:"emergencyType"`
	Responder     UserInfo `json:"responder"`
}

// ResponderAccepted tells the alert creator who is coming.
type ResponderAccepted struct {
	Type      string   `json:"type"`
	AlertID   string   `json:"alertId"`
	Responder UserInfo `json:"responder"`
}

// ResponderLocationUpdate forwards a responder position to interested parties.
type ResponderLocationUpdate struct {
	Type        string  `json:"type"`
	AlertID     string  `json:"alertId"`
	ResponderID string  `json:"responderId"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// SelectedRoute forwards the responder's chosen route to the alert creator.
type SelectedRoute struct {
	Type    string      `json:"type"`
	AlertID string      `json:"alertId"`
	Coords  [][]float64 `json:"coordsFromResponder"`
}

// AlertResolved notifies the creator that the alert reached its terminal
// state.
type AlertResolved struct {
	Type    string `json:"type"`
	AlertID string `json:"alertId"`
}

// WaitingTime forwards creator-reported waiting time to the responder.
type WaitingTime struct {
	Type    string  `json:"type"`
	AlertID string  `json:"alertId"`
	Time    float64 `json:"time"`
}
