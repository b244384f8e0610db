// Package mqtt wraps paho.mqtt.golang with the connection behavior the
// bridge needs: a bounded initial connect loop, TLS against the broker
// listener, JWT-password authentication, and blocking publishes that
// wait for broker acknowledgment.
//
// Initial connection retries a fixed number of times with a fixed delay
// between attempts, then gives up with ErrConnectionFailed so the
// process can exit and be restarted by its supervisor. Once connected,
// paho's auto-reconnect takes over with backoff between the configured
// bounds.
package mqtt
