// Package config loads the voiceloop configuration from a YAML file with
// environment overrides (optionally from a .env file) and validates every
// section before the client starts.
package config
