// Package credential mints the JWTs the EMQX broker authenticates
// against. Every credential embeds an ACL so the broker can enforce
// topic access without calling back into the bridge: the backend gets
// a wildcard grant, each user gets pubsub on their own namespace.
//
// Refresh tokens are stateless. Issuing a new pair never invalidates
// the old one; revocation is handled by rotating the signing secret.
package credential
