// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging via ShellExecutor, exposes OSCommandRunner for
// default process execution, and defines the abstractions used by the
// deployment pipeline to run git, configured build scripts, and isolated stage
// workers in a testable manner.
package execshell
