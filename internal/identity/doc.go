// Package identity holds the minimal user model the bridge needs.
//
// Credentials are minted for users, device sessions are owned by users,
// and notifications are addressed to users - but the bridge never
// authenticates passwords or manages profiles. That stays with the web
// backend; this package only resolves and lists accounts.
package identity
