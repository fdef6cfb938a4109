// Package config provides 12-factor configuration for jsrealm.
//
// Configuration is loaded from environment variables with defaults, then
// optionally overlaid by a profile file (YAML, TOML or JSON). CLI flags
// override both.
//
// Configuration Sections:
//   - Logging: log level and output format
//   - Sandbox: options for root contexts (sloppy globals, configurable
//     globals, endowment write policy, call stack limit, shim sources)
//   - Pool: pre-repaired intrinsics pool size and acquire timeout
//   - Metrics: Prometheus collection switch
//   - Tracing: per-evaluation span logging switch
//   - Limit: evaluation rate limit across a manager's contexts
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	if err := config.LoadProfile("sandbox.yaml", cfg); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - JSREALM_LOG_LEVEL, JSREALM_LOG_DEV
//   - JSREALM_SLOPPY_GLOBALS, JSREALM_CONFIGURABLE_GLOBALS
//   - JSREALM_ENDOWMENT_WRITES, JSREALM_MAX_CALL_STACK, JSREALM_SHIMS
//   - JSREALM_POOL_SIZE, JSREALM_POOL_TIMEOUT
//   - JSREALM_METRICS, JSREALM_TRACE
//   - JSREALM_RATE_LIMIT, JSREALM_RATE_BURST
package config
