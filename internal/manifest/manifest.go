// Package manifest models the JSON artifact index published alongside builds
// and provides a pure merge plus atomic file persistence. Only the entries a
// merge replaces are decoded; every other key of the document is carried
// through unchanged.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	scriptExtensionConstant          = ".js"
	stylesExtensionConstant          = ".css"
	directorySeparatorConstant       = "/"
	jsonIndentConstant               = "  "
	temporaryFilePatternConstant     = ".manifest-*.tmp"
	manifestFilePermissionsConstant  = 0o644
	readErrorTemplateConstant        = "unable to read manifest %s: %w"
	decodeErrorTemplateConstant      = "unable to decode manifest %s: %w"
	encodeErrorTemplateConstant      = "unable to encode manifest %s: %w"
	temporaryFileErrorTemplate       = "unable to stage manifest %s: %w"
	replaceErrorTemplateConstant     = "unable to replace manifest %s: %w"
	permissionsErrorTemplateConstant = "unable to set manifest permissions %s: %w"
	entryDecodeErrorTemplateConstant = "unable to decode manifest entry %s: %w"
)

// Entry is the published record for one build.
type Entry struct {
	Version string `json:"version"`
	Script  string `json:"script,omitempty"`
	Styles  string `json:"styles,omitempty"`
}

// Manifest maps top-level keys to their undecoded JSON values. Build entries
// written by this tool decode as Entry; other keys keep whatever shape they had.
type Manifest map[string]json.RawMessage

// Entry decodes the build entry stored under name.
func (contents Manifest) Entry(name string) (Entry, bool, error) {
	rawEntry, found := contents[name]
	if !found {
		return Entry{}, false, nil
	}
	var entry Entry
	if decodeError := json.Unmarshal(rawEntry, &entry); decodeError != nil {
		return Entry{}, true, fmt.Errorf(entryDecodeErrorTemplateConstant, name, decodeError)
	}
	return entry, true, nil
}

// Update pairs a build name with its replacement entry.
type Update struct {
	Name  string
	Entry Entry
}

// NewEntry derives an entry from the resolved file names of a build. Files
// other than scripts and stylesheets are ignored; prefix is normalised with a
// trailing separator.
func NewEntry(version string, resolvedFileNames []string, prefix string) Entry {
	normalizedPrefix := prefix
	if len(normalizedPrefix) > 0 && !strings.HasSuffix(normalizedPrefix, directorySeparatorConstant) {
		normalizedPrefix += directorySeparatorConstant
	}

	entry := Entry{Version: version}
	for _, resolvedFileName := range resolvedFileNames {
		switch strings.ToLower(filepath.Ext(resolvedFileName)) {
		case scriptExtensionConstant:
			entry.Script = normalizedPrefix + resolvedFileName
		case stylesExtensionConstant:
			entry.Styles = normalizedPrefix + resolvedFileName
		}
	}
	return entry
}

// Merge returns a new manifest with every update replacing the entry of the
// same name. Keys without an update keep their original value and the input
// manifest is not modified.
func Merge(current Manifest, updates []Update) Manifest {
	merged := make(Manifest, len(current)+len(updates))
	for name, rawValue := range current {
		merged[name] = rawValue
	}
	for _, update := range updates {
		merged[update.Name] = encodeEntry(update.Entry)
	}
	return merged
}

// encodeEntry cannot fail: Entry holds only strings.
func encodeEntry(entry Entry) json.RawMessage {
	encoded, _ := json.Marshal(entry)
	return encoded
}

// Load reads and decodes the manifest at manifestPath.
func Load(manifestPath string) (Manifest, error) {
	contents, readError := os.ReadFile(manifestPath)
	if readError != nil {
		return nil, fmt.Errorf(readErrorTemplateConstant, manifestPath, readError)
	}

	var loaded Manifest
	if decodeError := json.Unmarshal(contents, &loaded); decodeError != nil {
		return nil, fmt.Errorf(decodeErrorTemplateConstant, manifestPath, decodeError)
	}
	if loaded == nil {
		loaded = Manifest{}
	}
	return loaded, nil
}

// Save writes the manifest through a temporary file renamed over manifestPath.
func Save(manifestPath string, contents Manifest) error {
	encoded, encodeError := json.MarshalIndent(contents, "", jsonIndentConstant)
	if encodeError != nil {
		return fmt.Errorf(encodeErrorTemplateConstant, manifestPath, encodeError)
	}
	encoded = append(encoded, '\n')

	temporaryFile, createError := os.CreateTemp(filepath.Dir(manifestPath), temporaryFilePatternConstant)
	if createError != nil {
		return fmt.Errorf(temporaryFileErrorTemplate, manifestPath, createError)
	}
	temporaryPath := temporaryFile.Name()
	defer os.Remove(temporaryPath)

	if _, writeError := temporaryFile.Write(encoded); writeError != nil {
		temporaryFile.Close()
		return fmt.Errorf(temporaryFileErrorTemplate, manifestPath, writeError)
	}
	if syncError := temporaryFile.Sync(); syncError != nil {
		temporaryFile.Close()
		return fmt.Errorf(temporaryFileErrorTemplate, manifestPath, syncError)
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		return fmt.Errorf(temporaryFileErrorTemplate, manifestPath, closeError)
	}
	if chmodError := os.Chmod(temporaryPath, manifestFilePermissionsConstant); chmodError != nil {
		return fmt.Errorf(permissionsErrorTemplateConstant, manifestPath, chmodError)
	}
	if renameError := os.Rename(temporaryPath, manifestPath); renameError != nil {
		return fmt.Errorf(replaceErrorTemplateConstant, manifestPath, renameError)
	}
	return nil
}
