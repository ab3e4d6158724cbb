package builds

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/groupby/gb-deployment-tools/internal/project"
	"github.com/groupby/gb-deployment-tools/internal/versioning"
)

const (
	tokenVersionSeparatorConstant      = "@"
	transientVersionDateLayoutConstant = "2006-01-02"
	transientVersionTemplateConstant   = "%s-%d"
	resolvedFileNameTemplateConstant   = "%s-%s%s"
	buildTokenTemplateConstant         = "%s@%s"
)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// File is one source file of a resolved build.
type File struct {
	Source string
	Base   string
}

// Descriptor identifies one deployable unit.
type Descriptor struct {
	Name               string
	Version            string
	Files              []File
	ResolvedFilePrefix string
	// ResolvedFileNames holds one output name per file, or nil when the build declares no files.
	ResolvedFileNames []string
}

// IsRelease reports whether the descriptor carries a semantic version.
func (descriptor Descriptor) IsRelease() bool {
	return versioning.IsRelease(descriptor.Version)
}

// Token renders the descriptor as name@version.
func (descriptor Descriptor) Token() string {
	return fmt.Sprintf(buildTokenTemplateConstant, descriptor.Name, descriptor.Version)
}

// Resolver converts build tokens into descriptors.
type Resolver struct {
	clock Clock
}

// NewResolver constructs a Resolver; a nil clock falls back to the system clock.
func NewResolver(clock Clock) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Resolver{clock: clock}
}

// Resolve parses tokens against catalog. Unknown names are kept so validation can report them.
func (resolver *Resolver) Resolve(tokens []string, catalog project.BuildCatalog) []Descriptor {
	transientVersion := resolver.TransientVersion()
	descriptors := make([]Descriptor, 0, len(tokens))
	for _, token := range tokens {
		trimmedToken := strings.TrimSpace(token)
		if len(trimmedToken) == 0 {
			continue
		}

		name, version := splitToken(trimmedToken)
		if !versioning.IsRelease(version) {
			version = transientVersion
		}

		descriptor := Descriptor{Name: name, Version: version}
		if definition, exists := catalog[name]; exists {
			descriptor.ResolvedFilePrefix = definition.ResolvedFilePrefix
			descriptor.Files = make([]File, 0, len(definition.Files))
			for _, fileDefinition := range definition.Files {
				descriptor.Files = append(descriptor.Files, File{Source: fileDefinition.Source, Base: fileDefinition.Base})
			}
		}
		descriptor.ResolvedFileNames = ResolveFileNames(descriptor.Files, version)
		descriptors = append(descriptors, descriptor)
	}
	return descriptors
}

// TransientVersion renders the current date and unix seconds as a non-semantic version.
func (resolver *Resolver) TransientVersion() string {
	now := resolver.clock.Now()
	return fmt.Sprintf(transientVersionTemplateConstant, now.UTC().Format(transientVersionDateLayoutConstant), now.Unix())
}

// ReleaseTokens renders name@version for every catalog entry in sorted order.
func ReleaseTokens(catalog project.BuildCatalog, version string) []string {
	names := catalog.Names()
	tokens := make([]string, 0, len(names))
	for _, name := range names {
		tokens = append(tokens, fmt.Sprintf(buildTokenTemplateConstant, name, version))
	}
	return tokens
}

// ResolveFileNames computes {base-or-stem}-{version}{extension} per file, returning nil for no files.
func ResolveFileNames(files []File, version string) []string {
	if len(files) == 0 {
		return nil
	}
	resolvedFileNames := make([]string, 0, len(files))
	for _, file := range files {
		sourceName := filepath.Base(file.Source)
		extension := filepath.Ext(sourceName)
		base := strings.TrimSpace(file.Base)
		if len(base) == 0 {
			base = strings.TrimSuffix(sourceName, extension)
		}
		resolvedFileNames = append(resolvedFileNames, fmt.Sprintf(resolvedFileNameTemplateConstant, base, version, extension))
	}
	return resolvedFileNames
}

func splitToken(token string) (string, string) {
	separatorIndex := strings.LastIndex(token, tokenVersionSeparatorConstant)
	if separatorIndex <= 0 {
		return token, ""
	}
	return token[:separatorIndex], token[separatorIndex+1:]
}
