// Package domain contains entity without logic, just meta-data
package domain

// MaxUserIDLen bounds the user id accepted from a credential.
const MaxUserIDLen = 36

type (
	UserID   string
	DeviceID string
)

// DefaultDevice is assumed when a client connects without naming its device.
const DefaultDevice DeviceID = "default"

// User is the directory view used to enrich outbound envelopes. Account
// management lives in an external service.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}
