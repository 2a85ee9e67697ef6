package audit

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Version is a semver triple with optional pre-release/build metadata,
// total-ordered by semver rules. The build graph also needs to tolerate the
// occasional pseudo-version or bare VCS revision that doesn't parse as
// semver (a module pinned to a commit rather than a tag); those compare
// equal only to themselves and are ordered against any other version by raw
// string comparison, mirroring
// how the teacher lineage's own gps.Version hierarchy layers a Revision
// underneath a comparable Version interface.
type Version struct {
	raw string
	sv  *semver.Version
}

// NewVersion parses raw as a semver version. If raw does not parse, the
// Version is still constructed (as an opaque, revision-like value) so that
// PackageId values for pseudo-versioned modules remain usable; Compare and
// Less fall back to raw string comparison in that case.
func NewVersion(raw string) Version {
	sv, err := semver.NewVersion(raw)
	if err != nil {
		return Version{raw: raw}
	}
	return Version{raw: raw, sv: sv}
}

// String returns the original, unparsed version string.
func (v Version) String() string { return v.raw }

// IsSemver reports whether v parsed as a valid semver version.
func (v Version) IsSemver() bool { return v.sv != nil }

// Compare returns -1, 0, or 1 following semver ordering when both versions
// parsed as semver; otherwise it falls back to comparing the raw strings so
// that ordering remains total (if arbitrary) for non-semver pins.
func (v Version) Compare(o Version) int {
	if v.sv != nil && o.sv != nil {
		return v.sv.Compare(o.sv)
	}
	switch {
	case v.raw < o.raw:
		return -1
	case v.raw > o.raw:
		return 1
	default:
		return 0
	}
}

// Equal reports whether v and o denote the same version string.
func (v Version) Equal(o Version) bool { return v.raw == o.raw }

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// VersionReq is a semver constraint expression, e.g. ">=2.0.0", used by
// Violation entries to match a range of versions.
type VersionReq struct {
	raw string
	c   *semver.Constraints
}

// NewVersionReq parses a semver constraint expression.
func NewVersionReq(raw string) (VersionReq, error) {
	c, err := semver.NewConstraint(raw)
	if err != nil {
		return VersionReq{}, errors.Wrapf(err, "invalid version requirement %q", raw)
	}
	return VersionReq{raw: raw, c: c}, nil
}

// Matches reports whether v satisfies the requirement. A non-semver version
// never matches a parsed requirement (there is nothing sound to compare).
func (r VersionReq) Matches(v Version) bool {
	if r.c == nil || v.sv == nil {
		return false
	}
	return r.c.Check(v.sv)
}

// String returns the original constraint expression.
func (r VersionReq) String() string { return r.raw }

// Source identifies where a package's code comes from. The workspace's own
// module has the zero value; every third-party module records the module
// proxy host (or VCS host) it was fetched from.
type Source string

// IsThirdParty reports whether s denotes an external registry/proxy source
// rather than the workspace's own root module.
func (s Source) IsThirdParty() bool { return s != "" }

// PackageId uniquely identifies one package-version within a DepGraph.
type PackageId struct {
	Name    string
	Version Version
	Source  Source
}

// String renders "name@version" for diagnostics.
func (id PackageId) String() string {
	return fmt.Sprintf("%s@%s", id.Name, id.Version.String())
}

// IsThirdParty reports whether this package originates outside the
// workspace's own module.
func (id PackageId) IsThirdParty() bool { return id.Source.IsThirdParty() }
