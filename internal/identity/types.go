package identity

import (
	"errors"
	"time"
)

// User is a web-backend account that can own MQTT devices and receive
// notifications. The bridge does not manage passwords or profiles; the
// surrounding backend does. What matters here is that a user ID exists
// and is active, because credentials and device sessions hang off it.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// BackendUserID is the synthetic identity the bridge itself connects to
// the broker as. Webhook events carrying it describe the bridge's own
// connection, not a real device.
const BackendUserID = "backend"

// Sentinel errors for identity operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
)
