// Package config loads recorder settings from TOML (or YAML, chosen by file
// extension) on top of built-in defaults and validates every section.
package config
