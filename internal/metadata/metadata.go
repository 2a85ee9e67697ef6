// Package metadata loads the workspace graph input the audit engine
// consumes. Acquiring it from the real build (invoking `go list`, parsing
// go.mod/go.sum) is out of scope for this repository; this package instead
// supports loading a pre-computed graph dump, the same role the teacher
// lineage's own `gps` test harness fills with hand-built depspec fixtures
// instead of a real VCS checkout.
package metadata

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/pkgvet/pkgvet/audit"
)

// rawPackage mirrors audit.Package with JSON tags, the same raw-struct
// pattern the teacher lineage's own manifest.go/lock.go use to separate the
// wire shape from the in-memory type.
type rawPackage struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Source    string `json:"source,omitempty"`
	IsRoot    bool   `json:"is_root,omitempty"`
	Deps      []int  `json:"deps,omitempty"`
	DevDeps   []int  `json:"dev_deps,omitempty"`
	BuildDeps []int  `json:"build_deps,omitempty"`
}

type rawMetadata struct {
	WorkspaceRoot string       `json:"workspace_root"`
	Packages      []rawPackage `json:"packages"`
}

// Load decodes a JSON-encoded graph dump (as produced by `go list -deps
// -json` plus a small adapter script, or hand-authored for tests) into an
// audit.Metadata value.
func Load(r io.Reader) (audit.Metadata, error) {
	var raw rawMetadata
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return audit.Metadata{}, errors.Wrap(err, "decoding metadata")
	}
	md := audit.Metadata{
		WorkspaceRoot: raw.WorkspaceRoot,
		Packages:      make([]audit.Package, len(raw.Packages)),
	}
	for i, p := range raw.Packages {
		md.Packages[i] = audit.Package{
			Name:      p.Name,
			Version:   p.Version,
			Source:    audit.Source(p.Source),
			IsRoot:    p.IsRoot,
			Deps:      p.Deps,
			DevDeps:   p.DevDeps,
			BuildDeps: p.BuildDeps,
		}
	}
	return md, nil
}
