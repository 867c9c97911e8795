// Package config loads and validates server configuration from an optional
// YAML file and RELAY_-prefixed environment variables, giving the rest of
// the application type-safe access to settings without knowing where they
// came from.
package config