// Package githubapi talks to the GitHub REST API for the release workflow:
// listing, closing, and opening pull requests and creating releases.
package githubapi
