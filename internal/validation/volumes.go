package validation

import (
	"fmt"
	"strings"

	"github.com/dcm-project/service-orchestrator/internal/store/model"
)

// ParseVolumeMappings parses "host:container" entries. Blank entries are dropped.
func ParseVolumeMappings(specs []string) ([]model.VolumeMapping, error) {
	var mappings []model.VolumeMapping
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		parts := strings.Split(spec, ":")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w: %q must be host:container", ErrInvalidVolumeMapping, spec)
		}
		mappings = append(mappings, model.VolumeMapping{Host: parts[0], Container: parts[1]})
	}
	return mappings, nil
}
