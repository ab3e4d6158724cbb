// Package failures defines the error taxonomy shared by the deployment and
// release pipelines. Every terminal failure carries a Code so callers can
// match it with errors.Is regardless of wrapping.
package failures
