// Package config loads the Trackside configuration file.
//
// Values are resolved in three layers: built-in defaults, then config.yaml,
// then TRACKSIDE_* environment variables. Validate reports every problem in
// one error so an operator can fix the file in a single pass.
//
// Declarative automation rules live under automation.rules. Only their
// structure is checked here; patterns and guards are compiled when the rules
// are registered with the engine.
//
// Keep the MQTT password and the InfluxDB token out of the file and supply
// them as TRACKSIDE_MQTT_PASSWORD and TRACKSIDE_INFLUXDB_TOKEN.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	engine := automation.NewEngine(automation.EngineConfig{Workers: cfg.Automation.Workers}, log)
package config
