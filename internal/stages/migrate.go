package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	migratePathsMissingMessageConstant = "no files to migrate"
	migrateCopyErrorTemplateConstant   = "copy %s to %s: %w"
	migrateDirectoryPermissionConstant = 0o755
)

// MigrateExecutor copies build outputs into the cloned artifact repository.
type MigrateExecutor struct{}

// NewMigrateExecutor constructs a MigrateExecutor.
func NewMigrateExecutor() *MigrateExecutor {
	return &MigrateExecutor{}
}

// Execute copies every source path to its paired destination, creating parent directories.
func (executor *MigrateExecutor) Execute(executionContext context.Context, payload json.RawMessage) error {
	var migratePayload MigratePayload
	if decodeError := decodePayload(ActionMigrate, payload, &migratePayload); decodeError != nil {
		return decodeError
	}

	if len(migratePayload.Paths) == 0 {
		return failures.Newf(failures.CodeMigrateFailed, migratePathsMissingMessageConstant)
	}

	for _, pathPair := range migratePayload.Paths {
		if contextError := executionContext.Err(); contextError != nil {
			return failures.Wrap(failures.CodeMigrateFailed, contextError)
		}
		if copyError := copyFile(pathPair.Source, pathPair.Destination); copyError != nil {
			return failures.Wrap(failures.CodeMigrateFailed, fmt.Errorf(migrateCopyErrorTemplateConstant, pathPair.Source, pathPair.Destination, copyError))
		}
	}
	return nil
}

func copyFile(sourcePath string, destinationPath string) error {
	sourceFile, openError := os.Open(sourcePath)
	if openError != nil {
		return openError
	}
	defer sourceFile.Close()

	sourceInfo, statError := sourceFile.Stat()
	if statError != nil {
		return statError
	}

	if mkdirError := os.MkdirAll(filepath.Dir(destinationPath), migrateDirectoryPermissionConstant); mkdirError != nil {
		return mkdirError
	}

	destinationFile, createError := os.OpenFile(destinationPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, sourceInfo.Mode().Perm())
	if createError != nil {
		return createError
	}

	if _, copyError := io.Copy(destinationFile, sourceFile); copyError != nil {
		destinationFile.Close()
		return copyError
	}
	return destinationFile.Close()
}
