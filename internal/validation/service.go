package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dcm-project/service-orchestrator/internal/store/model"
)

// legacy names accepted alongside the enum values
var modeAliases = map[string]model.Mode{
	"docker":         model.ModeBuildFromSource,
	"docker-compose": model.ModeComposeStack,
	"dockerfile":     model.ModePrebuiltImage,
}

// ParseMode resolves a mode name or one of its legacy aliases.
func ParseMode(s string) (model.Mode, error) {
	switch mode := model.Mode(strings.ToUpper(strings.TrimSpace(s))); mode {
	case model.ModeBuildFromSource, model.ModeComposeStack, model.ModePrebuiltImage:
		return mode, nil
	}
	if mode, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return mode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
}

var workspaceRootRegex = regexp.MustCompile(`^[a-zA-Z0-9._][a-zA-Z0-9._/-]*$`)

// ValidateWorkspaceRoot checks that root stays inside the workspace.
func ValidateWorkspaceRoot(root string) error {
	if root == "" || root == "." {
		return nil
	}
	if !workspaceRootRegex.MatchString(root) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidWorkspaceRoot, root)
	}
	if strings.Contains(root, "..") {
		return fmt.Errorf("%w: %q must not contain '..'", ErrInvalidWorkspaceRoot, root)
	}
	if filepath.IsAbs(filepath.Clean(root)) {
		return fmt.Errorf("%w: must be a relative path", ErrInvalidWorkspaceRoot)
	}
	return nil
}
