// Package project describes the static project wiring consumed by the
// deployment and release pipelines: the build catalog, the environment
// catalog, and the repository configuration block. It decodes the loosely
// typed configuration namespace into an explicit schema, applies defaults,
// validates required fields, and scaffolds boilerplate configuration.
package project
