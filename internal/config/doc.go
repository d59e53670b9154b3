// Package config loads, normalizes, and validates remux configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// REMUX_S5_AUTH_TOKEN. The Config type centralizes every knob the daemon and
// CLI need: cache budgets, GC timing, storage portal endpoints, and encoder
// limits are all discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
