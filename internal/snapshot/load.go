// Package snapshot loads pipelines from files for offline layout: a saved
// GraphQL pipeline details response, or a .gitlab-ci.yml definition.
package snapshot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/provider/gitlab"
)

// maxFileSizeBytes bounds the files LoadFile accepts (4MB).
const maxFileSizeBytes = 4 * 1024 * 1024

// LoadFile reads a pipeline from path. Files ending in .json are GraphQL
// responses; .yml and .yaml files are CI definitions.
func LoadFile(path string) (domain.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Pipeline{}, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) > maxFileSizeBytes {
		return domain.Pipeline{}, fmt.Errorf("snapshot exceeds maximum size of %d bytes", maxFileSizeBytes)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return gitlab.ParsePipelineDetails(bytes.NewReader(data))
	case ".yml", ".yaml":
		p, err := ParseCI(data)
		if err != nil {
			return domain.Pipeline{}, err
		}
		p.ID = filepath.Base(path)
		return p, nil
	default:
		return domain.Pipeline{}, fmt.Errorf("unsupported snapshot extension %q", ext)
	}
}
