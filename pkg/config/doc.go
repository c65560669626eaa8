// Package config loads typed configuration structs from environment
// variables, with optional .env support for local development. Parsed
// configs are cached per type so independent components loading the same
// struct cannot diverge.
package config
