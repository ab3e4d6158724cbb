package release

import (
	"strings"

	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
)

const (
	releaseNotesHeaderConstant = "Commits since last release:"
	releaseNotesEmptyConstant  = "Current release does not include any commits."
	releaseNotesBulletPrefix   = "- "
	releaseNotesLineSeparator  = "\n"
)

// BuildReleaseNotes renders one bullet per commit message, skipping the
// version bump commit identified by bumpHash.
func BuildReleaseNotes(commits []gitrepo.Commit, bumpHash string) string {
	lines := make([]string, 0, len(commits)+1)
	for _, commit := range commits {
		message := strings.TrimSpace(commit.Message)
		if len(message) == 0 || (len(bumpHash) > 0 && commit.Hash == bumpHash) {
			continue
		}
		lines = append(lines, releaseNotesBulletPrefix+message)
	}
	if len(lines) == 0 {
		return releaseNotesEmptyConstant
	}
	return releaseNotesHeaderConstant + releaseNotesLineSeparator + strings.Join(lines, releaseNotesLineSeparator)
}
