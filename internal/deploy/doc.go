// Package deploy promotes build artifacts into an environment of the artifact
// repository after the precondition checks pass.
package deploy
