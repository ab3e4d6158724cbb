// Package gitrepo contains helpers for interrogating and manipulating Git repositories.
//
// It exposes RepositoryManager for inspecting working tree status, moving
// branches, committing, pushing, and reading history, a go-git backed Cloner
// for the clone stage, and remote URL parsing used to derive the hosting
// owner and repository name.
package gitrepo
