// Package cli constructs the gb-deploy command-line interface, wiring the
// Cobra command hierarchy, configuration loader, structured logging, and the
// collaborators behind the deploy, release, init, and stage commands.
package cli
