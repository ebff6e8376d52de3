package state

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	artifactOnce sync.Once
	artifactRoot string
)

// ArtifactRoot resolves where out-of-band artifacts (telemetry snapshots,
// inspect dumps, CI captures) land: HEARTH_ARTIFACT_ROOT first, then the
// harness-provided TEST_ARTIFACTS_ROOT. Empty means not configured and
// callers keep their defaults. Resolved once; later env changes are ignored.
func ArtifactRoot() string {
	artifactOnce.Do(func() {
		root := strings.TrimSpace(os.Getenv("HEARTH_ARTIFACT_ROOT"))
		if root == "" {
			root = strings.TrimSpace(os.Getenv("TEST_ARTIFACTS_ROOT"))
		}
		if root == "" {
			return
		}
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		artifactRoot = root
	})
	return artifactRoot
}

// ArtifactPath joins the artifact root with elem, or returns "" when no
// root is configured.
func ArtifactPath(elem ...string) string {
	root := ArtifactRoot()
	if root == "" {
		return ""
	}
	return filepath.Join(append([]string{root}, elem...)...)
}
