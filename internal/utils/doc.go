// Package utils exposes reusable helpers consumed by the gb-deploy commands.
//
// It houses the ConfigurationLoader and LoggerFactory abstractions that
// integrate Viper, environment variables, and zap logging for the CLI, and
// the CommandContextAccessor that threads run metadata through contexts.
package utils
