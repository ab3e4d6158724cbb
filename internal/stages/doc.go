// Package stages implements the isolated pipeline operations (clone, build,
// migrate, commit, cleanup) behind a uniform message contract.
//
// A Message names an Action and carries a JSON payload. The Dispatcher routes
// a message to its Executor. Runners decide where dispatch happens: the
// InlineRunner dispatches in the calling process, while the ProcessRunner
// re-executes the current binary with the message on standard input and
// interprets the exit status together with the structured failure payload
// written to standard output by Serve.
package stages
