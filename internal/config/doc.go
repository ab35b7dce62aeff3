// Package config loads settings from defaults, an optional YAML file and
// SCRIBE_-prefixed environment variables, in increasing precedence, and
// validates them with struct tags before any component starts.
package config
