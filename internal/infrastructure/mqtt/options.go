package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/quartzlab/emqx-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time a single connection attempt waits.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is used when the config does not set one.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from bridge config.
//
// The password is sourced through a credentials provider so every
// reconnect handshake presents a freshly minted JWT rather than the one
// from process start, which may have expired.
func buildClientOptions(cfg config.MQTTConfig, credentials CredentialSource) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)

	opts.SetCredentialsProvider(func() (string, string) {
		token, err := credentials.IssueBackendCredential()
		if err != nil {
			// Leave the password empty; the broker rejects the
			// handshake and paho retries, minting again.
			return BackendUsername, ""
		}
		return BackendUsername, token
	})

	// Clean session - no persistent broker-side state between connects.
	opts.SetCleanSession(true)

	// Auto-reconnect after an established connection drops. The initial
	// connect loop in Connect() is separate and bounded.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.RetryDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)

	keepalive := defaultKeepAlive
	if cfg.Broker.Keepalive > 0 {
		keepalive = time.Duration(cfg.Broker.Keepalive) * time.Second
	}
	opts.SetKeepAlive(keepalive)

	if cfg.Broker.TLS {
		tlsConfig, err := buildTLSConfig(cfg.Broker.CAFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

// buildTLSConfig returns TLS settings for the broker connection.
// With no CA file the system trust store is used.
func buildTLSConfig(caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle %s: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no valid certificates", caFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
