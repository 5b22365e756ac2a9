package workspace

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/dcm-project/service-orchestrator/internal/store/model"
)

var (
	ErrInvalidSourceLocator  = errors.New("invalid source locator")
	ErrInvalidImageReference = errors.New("invalid image reference")
)

var (
	// git@host:owner/repo.git
	scpLikeRegex  = regexp.MustCompile(`^(?:[^@/]+@)?[^:/]+:(.+)$`)
	idUnsafeRegex = regexp.MustCompile(`[^a-z0-9._-]+`)
	imageReplacer = strings.NewReplacer("/", "_", ":", "_")
)

// DeriveID returns the stable identity of a service. Pre-built images are
// keyed by their reference; everything else by the repository path of the
// source locator, so the same source always maps to the same id.
func DeriveID(mode model.Mode, sourceLocator, imageReference string) (string, error) {
	if mode == model.ModePrebuiltImage {
		id := normalizeID(imageReplacer.Replace(strings.TrimSpace(imageReference)))
		if id == "" {
			return "", ErrInvalidImageReference
		}
		return id, nil
	}

	path := repositoryPath(strings.TrimSpace(sourceLocator))
	path = strings.TrimRight(path, "/")
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimRight(path, "/")

	id := normalizeID(path)
	if id == "" {
		return "", ErrInvalidSourceLocator
	}
	return id, nil
}

// repositoryPath drops scheme, user info and host from a locator. A locator
// without a scheme whose first segment looks like a host name is treated as
// host/path, so it maps to the same id as its https form.
func repositoryPath(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" {
		return u.Path
	}
	if match := scpLikeRegex.FindStringSubmatch(locator); match != nil {
		return match[1]
	}
	if host, rest, ok := strings.Cut(locator, "/"); ok && rest != "" && hostLike(host) {
		return rest
	}
	return locator
}

// hostLike reports whether s reads as a DNS name such as example.com.
func hostLike(s string) bool {
	if s == "localhost" {
		return true
	}
	return strings.Contains(s, ".") && !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".")
}

func normalizeID(s string) string {
	return strings.Trim(idUnsafeRegex.ReplaceAllString(strings.ToLower(s), "_"), "_.-")
}
