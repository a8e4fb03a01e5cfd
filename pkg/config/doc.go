// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv for .env files and
// github.com/caarlos0/env/v11 for struct parsing. Every component of the
// service owns its Config struct with env tags and defaults (pg.Config,
// dispatcher.Config, outbox.Config and so on); notifyd composes them and
// loads the result with Load.
//
// Parsed values are cached per type, so repeated Load calls are cheap and
// consistent. Tests that change the environment use ResetCache or
// ForceReloadConfig.
package config
