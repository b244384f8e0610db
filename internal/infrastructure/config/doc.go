// Package config handles loading and validating EMQX Bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (webhook secret, JWT signing key, node cookie)
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Validation fails fast when secret material is missing, so a
//     misconfigured deployment never reaches the broker
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
