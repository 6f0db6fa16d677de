package sandbox

import "strings"

// WorkspaceAccessMode controls how the workspace directory is exposed
// inside a sandbox.
type WorkspaceAccessMode string

const (
	// WorkspaceNone means no workspace is mounted (most secure).
	WorkspaceNone WorkspaceAccessMode = "none"

	// WorkspaceReadOnly mounts the workspace as read-only (default).
	WorkspaceReadOnly WorkspaceAccessMode = "ro"

	// WorkspaceReadWrite mounts the workspace with read-write access.
	WorkspaceReadWrite WorkspaceAccessMode = "rw"
)

// ParseWorkspaceAccess converts a config string to a workspace access mode.
func ParseWorkspaceAccess(raw string) WorkspaceAccessMode {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "rw", "readwrite", "read-write", "write":
		return WorkspaceReadWrite
	case "none", "disabled":
		return WorkspaceNone
	case "ro", "readonly", "read-only":
		return WorkspaceReadOnly
	default:
		return WorkspaceReadOnly
	}
}
