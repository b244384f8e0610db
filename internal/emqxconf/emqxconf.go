// Package emqxconf renders the broker-side configuration that pairs
// with the bridge: the JWT authentication block sharing the bridge's
// signing key, and the webhook delivering connection events back with
// the shared secret.
//
// The bridge and the broker hold the same two secrets; generating the
// broker config from the bridge's own settings keeps them from
// drifting apart.
package emqxconf

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/quartzlab/emqx-bridge/internal/infrastructure/config"
)

//go:embed emqx.conf.tmpl
var templateFS embed.FS

// Params are the values substituted into the broker config.
type Params struct {
	NodeCookie    string
	JWTSecret     string
	WebhookSecret string
	WebhookURL    string
}

// FromConfig derives render parameters from bridge configuration. The
// webhook URL points at the bridge's own API listener.
func FromConfig(cfg *config.Config) Params {
	return Params{
		NodeCookie:    cfg.Security.NodeCookie,
		JWTSecret:     cfg.Security.JWT.Secret,
		WebhookSecret: cfg.Webhook.Secret,
		WebhookURL:    fmt.Sprintf("http://%s:%d/api/v1/emqx/webhook", cfg.API.Host, cfg.API.Port),
	}
}

// Render writes the broker configuration to w.
func Render(w io.Writer, params Params) error {
	if params.NodeCookie == "" {
		return fmt.Errorf("node cookie is required")
	}
	if params.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if params.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}
	if params.WebhookURL == "" {
		return fmt.Errorf("webhook url is required")
	}

	tmpl, err := template.ParseFS(templateFS, "emqx.conf.tmpl")
	if err != nil {
		return fmt.Errorf("parsing broker config template: %w", err)
	}

	if err := tmpl.Execute(w, params); err != nil {
		return fmt.Errorf("rendering broker config: %w", err)
	}
	return nil
}

// WriteFile renders the broker configuration to a file, creating
// parent directories as needed. The file carries both broker secrets,
// so it is not world readable.
func WriteFile(path string, params Params) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if err := Render(f, params); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
