// Package config handles loading and validating switchsentry configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables and CLI flags
//   - Validation of required fields
//   - Default value handling
//
// Usage:
//
//	cfg, err := config.Load("config.yaml", config.Overrides{})
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
