// Package pipeline sequences the artifact stages shared by deploy and release:
// clone, an optional build and migrate, commit, and a cleanup that runs
// whenever the clone succeeded.
package pipeline
