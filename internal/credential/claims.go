package credential

import (
	"github.com/golang-jwt/jwt/v5"
)

// ACL permission and action values understood by the EMQX JWT authorizer.
const (
	PermissionAllow = "allow"

	ActionAll    = "all"
	ActionPubSub = "pubsub"
)

// Token type values carried in the "typ" claim. The refresh endpoint
// rejects anything that is not a refresh token.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ACLRule is a single broker-side authorization rule embedded in a
// credential. EMQX evaluates these in order against the topic of each
// publish or subscribe.
type ACLRule struct {
	Permission string `json:"permission"`
	Action     string `json:"action"`
	Topic      string `json:"topic"`
}

// Claims extends JWT registered claims with the fields EMQX reads:
// the MQTT username and the embedded ACL.
type Claims struct {
	jwt.RegisteredClaims
	Username  string    `json:"username"`
	TokenType string    `json:"typ"`
	ACL       []ACLRule `json:"acl,omitempty"`
}

// backendACL grants the bridge's own broker connection access to every
// topic. Only the backend credential carries it.
func backendACL() []ACLRule {
	return []ACLRule{{
		Permission: PermissionAllow,
		Action:     ActionAll,
		Topic:      "#",
	}}
}

// userACL confines a user credential to the user's own namespace.
func userACL(userID string) []ACLRule {
	return []ACLRule{{
		Permission: PermissionAllow,
		Action:     ActionPubSub,
		Topic:      "user/" + userID + "/#",
	}}
}
