package models

import "encoding/json"

// Channel names a broadcast topic a connection can subscribe to.
const (
	ChannelResponses      = "responses-survey"
	ChannelLocations      = "surveyor-locations"
	ChannelUpdateLocation = "updateLocation"
)

// Inbound message types.
const (
	MsgAuthenticate = "authenticate"
	MsgSubscribe    = "subscribe"
	MsgStartShift   = "startShift"
	MsgEndShift     = "endShift"
)

// Outbound message types. Snapshot broadcasts reuse the channel name as the
// message type.
const (
	MsgSurveyorStatus = "surveyor-status"
	MsgLocationUpdate = "locationUpdate"
	MsgError          = "error"
)

// ClientMessage is the inbound wire envelope.
type ClientMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the outbound wire envelope.
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// AuthenticatePayload carries the pre-authenticated identity a client
// presents on connect. Location is optional.
type AuthenticatePayload struct {
	UserID   int    `json:"userId"`
	Role     Role   `json:"role"`
	Location *Point `json:"location,omitempty"`
}

// LocationPayload is the data of updateLocation, startShift and endShift.
type LocationPayload struct {
	UserID   int    `json:"userId"`
	Location *Point `json:"location,omitempty"`
}

// SurveyorStatus announces a surveyor going on or off shift.
type SurveyorStatus struct {
	UserID    int    `json:"userId"`
	IsActive  bool   `json:"isActive"`
	Timestamp string `json:"timestamp"`
}

// LocationUpdate is the immediate per-ping notification sent to admins and
// supervisors, ahead of the full snapshot.
type LocationUpdate struct {
	UserID    int    `json:"userId"`
	Location  Point  `json:"location"`
	Timestamp string `json:"timestamp"`
}

// ErrorPayload is the data of an error envelope.
type ErrorPayload struct {
	Message string `json:"message"`
}
