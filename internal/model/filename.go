package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultFileNamePrefix is the fixed head of every generated file name.
const DefaultFileNamePrefix = "jp_bilpleie"

const noBrandLabel = "uten_merke"

var (
	whitespace = regexp.MustCompile(`\s+`)
	// File names are single path segments in both the blob store and the mirror.
	separators = strings.NewReplacer("/", "-", "\\", "-")
)

// FileNamer derives human-readable file names from metadata.
// Names are not unique across retries; ID is the join key.
type FileNamer struct {
	Prefix string
}

// Name returns <prefix>_<brand>_<model>_<date>_<millis>.pdf, lowercased,
// with every whitespace run replaced by an underscore and path separators
// replaced by a hyphen.
func (n FileNamer) Name(meta Metadata, at time.Time) string {
	prefix := n.Prefix
	if prefix == "" {
		prefix = DefaultFileNamePrefix
	}

	parts := make([]string, 0, 2)
	for _, p := range []string{meta.Car.Brand, meta.Car.Model} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	label := strings.Join(parts, "_")
	if label == "" {
		label = noBrandLabel
	}

	name := fmt.Sprintf("%s_%s_%s_%d.pdf", prefix, label, meta.Date, at.UnixMilli())
	name = separators.Replace(name)
	return strings.ToLower(whitespace.ReplaceAllString(name, "_"))
}
