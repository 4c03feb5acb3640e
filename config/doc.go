// Package config loads ceval settings from flags, CEVAL_* environment
// variables and an optional YAML file, in that order of precedence.
package config
