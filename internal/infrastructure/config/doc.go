// Package config handles loading and validating fcserver configuration.
//
// This package manages:
//   - Loading configuration from YAML or JSON files
//   - Overriding with environment variables
//   - Validation of required fields
//   - The built-in default configuration used when no file is given
//
// The public part of the configuration (listen, verbose, color, devices)
// keeps the shape clients expect from server_info:
//
//	{
//	    "listen": ["127.0.0.1", 7890],
//	    "verbose": true,
//	    "color": {"gamma": 2.5, "whitepoint": [1.0, 1.0, 1.0]},
//	    "devices": [{"type": "fadecandy", "map": [[0, 0, 0, 512]]}]
//	}
//
// Security Considerations:
//   - Secrets (MQTT password, InfluxDB token, WebSocket secret) should be
//     set via FCSERVER_* environment variables
//   - Config.Public never includes them
//
// Usage:
//
//	cfg, err := config.Load("fcserver.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Listen.Addr())
package config
