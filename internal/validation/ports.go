package validation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dcm-project/service-orchestrator/internal/store/model"
)

var portPairRegex = regexp.MustCompile(`^(\d+):(\d+)$`)

// ParsePortMapping parses "external:internal[,external:internal...]".
func ParsePortMapping(spec string) ([]model.PortMapping, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("%w: port mapping is required", ErrInvalidPortMapping)
	}

	var mappings []model.PortMapping
	seen := make(map[int]bool)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		match := portPairRegex.FindStringSubmatch(pair)
		if match == nil {
			return nil, fmt.Errorf("%w: %q does not match external:internal", ErrInvalidPortMapping, pair)
		}
		external, err := parsePort(match[1])
		if err != nil {
			return nil, err
		}
		internal, err := parsePort(match[2])
		if err != nil {
			return nil, err
		}
		if seen[external] {
			return nil, fmt.Errorf("%w: external port %d mapped twice", ErrInvalidPortMapping, external)
		}
		seen[external] = true
		mappings = append(mappings, model.PortMapping{External: external, Internal: internal})
	}
	return mappings, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: port %s out of range", ErrInvalidPortMapping, s)
	}
	return port, nil
}

// FormatPortMapping renders mappings back into the "external:internal" form.
func FormatPortMapping(mappings []model.PortMapping) string {
	parts := make([]string, len(mappings))
	for i, m := range mappings {
		parts[i] = fmt.Sprintf("%d:%d", m.External, m.Internal)
	}
	return strings.Join(parts, ",")
}

// PortLookup resolves which service, if any, currently claims an external port.
type PortLookup interface {
	PortOwner(ctx context.Context, port int) (string, error)
}

// CheckPortAvailability fails with *PortConflictError on the first external
// port claimed by a service other than self. The answer may be stale by the
// time the caller acts on it; the store's claim insert is authoritative.
func CheckPortAvailability(ctx context.Context, mappings []model.PortMapping, lookup PortLookup, self string) error {
	for _, m := range mappings {
		owner, err := lookup.PortOwner(ctx, m.External)
		if err != nil {
			return err
		}
		if owner != "" && owner != self {
			return &PortConflictError{Port: m.External, Owner: owner}
		}
	}
	return nil
}
