// Package device tracks which MQTT clients belong to which users.
//
// The broker is the source of truth for connectivity; this package only
// mirrors it. Webhook deliveries are at-least-once and may arrive out
// of order after a broker restart, so every reconciliation operation is
// idempotent: replaying a connect or disconnect event converges on the
// same row state and never double-fires lifecycle events.
package device
