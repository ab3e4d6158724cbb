// Package githubauth locates the release host access token.
package githubauth
