// Package config handles loading and validating VigiLant Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Broker host, port and subscription wildcard are not part of this file at
// runtime: they are stored in the database so operators can change them
// without a restart. The mqtt.defaults section only seeds that row.
//
// Sensitive values (MQTT password, InfluxDB token, JWT secret) should be set
// via environment variables.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
