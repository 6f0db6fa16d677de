package sandbox

import (
	"fmt"

	"github.com/rs/zerolog"
)

// BackendKind names which concrete Backend implementation to construct.
type BackendKind string

const (
	BackendAuto       BackendKind = "auto"
	BackendDocker     BackendKind = "docker"
	BackendSubprocess BackendKind = "subprocess"
)

// FallbackPolicy controls what happens when the requested backend cannot
// be constructed (sandbox_fallback in the configuration table).
type FallbackPolicy string

const (
	FallbackWarn  FallbackPolicy = "warn"
	FallbackError FallbackPolicy = "error"
)

// SelectConfig carries the resolved sandbox_backend/sandbox_network/
// sandbox_fallback configuration keys plus the workspace root.
type SelectConfig struct {
	Backend   BackendKind
	Fallback  FallbackPolicy
	Workspace string
	Network   bool
	Docker    DockerConfig
}

// NewBackend resolves sandbox_backend to a concrete Backend. "auto" tries
// Docker first and falls back to the subprocess backend; "docker" and
// "subprocess" request a specific implementation. When the requested
// backend cannot be constructed, FallbackPolicy decides whether to log a
// warning and degrade to the subprocess backend or return an error.
func NewBackend(cfg SelectConfig, log zerolog.Logger) (Backend, error) {
	docker := cfg.Docker
	docker.Workspace = cfg.Workspace
	docker.NetworkEnabled = cfg.Network

	switch cfg.Backend {
	case BackendSubprocess:
		return NewSubprocessBackend(cfg.Workspace), nil

	case BackendDocker:
		backend, err := NewDockerBackend(docker)
		if err != nil {
			return degrade(cfg, log, err)
		}
		return backend, nil

	case BackendAuto, "":
		backend, err := NewDockerBackend(docker)
		if err != nil {
			log.Warn().Err(err).Msg("docker sandbox unavailable, using subprocess backend")
			return NewSubprocessBackend(cfg.Workspace), nil
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown sandbox_backend %q", cfg.Backend)
	}
}

func degrade(cfg SelectConfig, log zerolog.Logger, cause error) (Backend, error) {
	if cfg.Fallback == FallbackError {
		return nil, fmt.Errorf("sandbox_backend=docker unavailable: %w", cause)
	}
	log.Warn().Err(cause).Msg("requested docker sandbox unavailable, falling back to subprocess")
	return NewSubprocessBackend(cfg.Workspace), nil
}
