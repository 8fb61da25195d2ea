// Package config loads, validates, and defaults the newswatch TOML
// configuration file.
package config
