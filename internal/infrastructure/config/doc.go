// Package config handles loading and validating the agent configuration.
//
// This package manages:
//   - Loading the configuration document from YAML
//   - Configuration records for entities and warehouses
//   - Overriding settings with environment variables
//   - Validation of required fields and record identities
//   - Default value handling
//
// The document groups records by category:
//
//	settings:
//	  app_name: graylogic-agent
//	  update_interval: 10s
//	entities:
//	  - type: Uptime
//	  - type: VirtualSwitch
//	    tag: desk lamp
//	warehouses:
//	  - type: HomeAssistant
//	    broker:
//	      host: localhost
//	      port: 1883
//
// Security Considerations:
//   - Broker and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/agent.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Settings.ClientName)
package config
