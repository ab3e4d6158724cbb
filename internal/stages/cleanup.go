package stages

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	cleanupDestinationMissingMessageConstant = "no repoDest configured"
	cleanupUnsafeDestinationTemplateConstant = "refusing to remove %s"
	currentDirectoryConstant                 = "."
)

// CleanupExecutor removes the cloned artifact repository.
type CleanupExecutor struct{}

// NewCleanupExecutor constructs a CleanupExecutor.
func NewCleanupExecutor() *CleanupExecutor {
	return &CleanupExecutor{}
}

// Execute recursively removes payload.RepoDestination.
func (executor *CleanupExecutor) Execute(_ context.Context, payload json.RawMessage) error {
	var cleanupPayload CleanupPayload
	if decodeError := decodePayload(ActionCleanup, payload, &cleanupPayload); decodeError != nil {
		return decodeError
	}

	destination := strings.TrimSpace(cleanupPayload.RepoDestination)
	if len(destination) == 0 {
		return failures.Newf(failures.CodeCleanupFailed, cleanupDestinationMissingMessageConstant)
	}

	cleanedDestination := filepath.Clean(destination)
	if cleanedDestination == currentDirectoryConstant || cleanedDestination == string(filepath.Separator) {
		return failures.Newf(failures.CodeCleanupFailed, cleanupUnsafeDestinationTemplateConstant, destination)
	}

	if removeError := os.RemoveAll(cleanedDestination); removeError != nil {
		return failures.Wrap(failures.CodeCleanupFailed, removeError)
	}
	return nil
}
