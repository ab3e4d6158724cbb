// Package release cuts a release of the production branch: it bumps and tags
// the version, publishes a host release, archives and refreshes the
// development branch, migrates open pull requests, and publishes the
// versioned artifacts.
//
// Branch operations are not rolled back on failure. The service logs the
// previous tag, the previous development tip, and the archive branch before
// the first destructive step so an operator can restore the repository.
package release
