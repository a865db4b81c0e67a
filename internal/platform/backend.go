// Package platform selects the media platform implementation.
package platform

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
	"github.com/AIGelman23/Connectify-sub001/internal/media/virtual"
)

// BackendType names a media platform implementation.
type BackendType string

const (
	BackendTypeVirtual BackendType = "virtual"
	BackendTypeAuto    BackendType = "auto"
)

// ParseBackend validates a configured backend name. Empty means auto.
func ParseBackend(name string) (BackendType, error) {
	switch BackendType(strings.ToLower(strings.TrimSpace(name))) {
	case "", BackendTypeAuto:
		return BackendTypeAuto, nil
	case BackendTypeVirtual:
		return BackendTypeVirtual, nil
	}
	return "", fmt.Errorf("unknown backend %q (available: %v)", name, GetAvailableBackends())
}

// determineBackend resolves auto to a concrete backend.
func determineBackend(b BackendType) BackendType {
	switch b {
	case BackendTypeVirtual:
		return BackendTypeVirtual
	default:
		// Only the virtual platform is built in.
		return BackendTypeVirtual
	}
}

// GetAvailableBackends returns the backends that can be selected on this
// system.
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeVirtual}
}

// New creates the platform named by backend.
func New(backend string, opts virtual.Options) (media.Platform, error) {
	b, err := ParseBackend(backend)
	if err != nil {
		return nil, err
	}
	resolved := determineBackend(b)
	slog.Debug("Media platform selected", "configured", b, "backend", resolved)
	return virtual.New(opts), nil
}
