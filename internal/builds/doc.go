// Package builds resolves build tokens of the form name or name@version into
// descriptors enriched with catalog defaults and versioned output file names.
package builds
