package emqxconf

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quartzlab/emqx-bridge/internal/infrastructure/config"
)

func testParams() Params {
	return Params{
		NodeCookie:    "erlang-cookie",
		JWTSecret:     "signing-secret",
		WebhookSecret: "webhook-secret",
		WebhookURL:    "http://bridge:8080/api/v1/emqx/webhook",
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, testParams()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		`cookie = "erlang-cookie"`,
		`secret = "signing-secret"`,
		`X-Webhook-Token = "webhook-secret"`,
		`url = "http://bridge:8080/api/v1/emqx/webhook"`,
		`acl_claim_name = "acl"`,
		`"client.connected"`,
		`"client.disconnected"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered config missing %q", want)
		}
	}
}

func TestRenderMissingParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"node cookie", func(p *Params) { p.NodeCookie = "" }},
		{"jwt secret", func(p *Params) { p.JWTSecret = "" }},
		{"webhook secret", func(p *Params) { p.WebhookSecret = "" }},
		{"webhook url", func(p *Params) { p.WebhookURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			tt.mutate(&params)
			if err := Render(&bytes.Buffer{}, params); err == nil {
				t.Errorf("Render() without %s should fail", tt.name)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated", "emqx.conf")

	if err := WriteFile(path, testParams()); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("output permissions = %o, want 0600", perm)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(content), "erlang-cookie") {
		t.Error("output file missing rendered values")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.NodeCookie = "cookie"
	cfg.Security.JWT.Secret = "jwt"
	cfg.Webhook.Secret = "hook"
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 8080

	params := FromConfig(cfg)
	if params.WebhookURL != "http://0.0.0.0:8080/api/v1/emqx/webhook" {
		t.Errorf("WebhookURL = %q", params.WebhookURL)
	}
	if params.NodeCookie != "cookie" || params.JWTSecret != "jwt" || params.WebhookSecret != "hook" {
		t.Errorf("params = %+v, want values from config", params)
	}
}
