// Package config loads and merges redline configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (REDLINE_PROVIDER, REDLINE_MODEL, etc.)
//  3. Repo overlay (.redline.yml in the working directory)
//  4. Config file ($XDG_CONFIG_HOME/redline/config.json)
//  5. Built-in defaults
//
// Use [Load] to obtain a merged [Config] and [SetField] to update a single
// key. GitHub credentials come only from the environment and are checked
// before a run starts.
package config
