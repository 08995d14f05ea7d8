// Package config handles loading and validating pjlinkd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with PJLINKD_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// The projector list itself lives in a separate bridge file referenced by
// protocols.pjlink.config_file and is loaded by the pjlink package.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - Config.MarshalJSON redacts secrets so the loaded config can be logged
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
