package audit

import (
	"strconv"

	"github.com/pkg/errors"
)

// DependencyCriteria maps a dependency package name to the criteria it must
// satisfy for the entry that declares it to hold.
type DependencyCriteria map[string][]CriteriaName

// AuditKind distinguishes the three shapes an AuditEntry can take.
type AuditKind int

const (
	KindFull AuditKind = iota
	KindDelta
	KindViolation
)

// AuditEntry is one human-authored audit record. Exactly one of the
// Full/Delta/Violation-specific fields is meaningful, selected by Kind.
type AuditEntry struct {
	Kind               AuditKind
	Version            Version    // Full
	From, To           Version    // Delta
	VersionReq         VersionReq // Violation
	Criteria           []CriteriaName
	DependencyCriteria DependencyCriteria
	Who                string
	Notes              string
}

// ExemptionEntry is a locally-scoped, unaudited trust assertion. It is
// semantically identical to a Full AuditEntry at resolution time, but kept
// as a distinct type because the suggester and minimizer treat it
// differently (Suggest controls whether `suggest` should still propose
// upgrading it to a real audit).
type ExemptionEntry struct {
	Version            Version
	Criteria           []CriteriaName
	DependencyCriteria DependencyCriteria
	Notes              string
	Suggest            bool
}

// PolicyEntry is a workspace member's required criteria for its
// dependencies. Unspecified Criteria/DevCriteria default to
// safe-to-deploy/safe-to-run respectively at propagation time.
type PolicyEntry struct {
	Criteria           []CriteriaName
	DevCriteria        []CriteriaName
	DependencyCriteria DependencyCriteria
}

// ImportPeer is the last-fetched, pinned content of one peer's audits file.
type ImportPeer struct {
	URL     string
	Audits  map[string][]AuditEntry
	Criteria map[CriteriaName]CriteriaEntry
}

// Store is the fully loaded, in-memory representation of a workspace's
// audit configuration: the audits table, local exemptions and policy, and
// any imported peer audits. Commands that change the store (certify,
// add-exemption, record-violation, minimize) edit its maps directly or call
// ClearExemptions; the resolver never mutates it.
type Store struct {
	DefaultCriteria []CriteriaName
	Criteria        map[CriteriaName]CriteriaEntry
	Audits          map[string][]AuditEntry
	Exemptions      map[string][]ExemptionEntry
	Policy          map[string]PolicyEntry
	Imports         map[string]ImportPeer
}

// NewStore returns an empty, valid Store.
func NewStore() *Store {
	return &Store{
		Criteria:   map[CriteriaName]CriteriaEntry{},
		Audits:     map[string][]AuditEntry{},
		Exemptions: map[string][]ExemptionEntry{},
		Policy:     map[string]PolicyEntry{},
		Imports:    map[string]ImportPeer{},
	}
}

// Validate checks the structural invariants that a load must enforce:
// every criterion name referenced by an audit, exemption, or policy exists
// in the closed criteria universe defined by mapper.
func (s *Store) Validate(mapper *CriteriaMapper) error {
	checkNames := func(ctx string, names []CriteriaName) error {
		for _, n := range names {
			if !mapper.Known(n) {
				return errors.Errorf("%s references unknown criterion %q", ctx, n)
			}
		}
		return nil
	}
	checkDepCriteria := func(ctx string, dc DependencyCriteria) error {
		for dep, names := range dc {
			if err := checkNames(ctx+" dependency_criteria["+dep+"]", names); err != nil {
				return err
			}
		}
		return nil
	}

	for pkg, entries := range s.Audits {
		for i, a := range entries {
			ctx := "audits[" + pkg + "][" + strconv.Itoa(i) + "]"
			if err := checkNames(ctx, a.Criteria); err != nil {
				return err
			}
			if err := checkDepCriteria(ctx, a.DependencyCriteria); err != nil {
				return err
			}
			if a.Kind == KindDelta && a.From.Equal(a.To) {
				return errors.Errorf("%s: delta audit's from and to must differ", ctx)
			}
		}
	}
	for pkg, entries := range s.Exemptions {
		for i, e := range entries {
			ctx := "exemptions[" + pkg + "][" + strconv.Itoa(i) + "]"
			if err := checkNames(ctx, e.Criteria); err != nil {
				return err
			}
			if err := checkDepCriteria(ctx, e.DependencyCriteria); err != nil {
				return err
			}
		}
	}
	for pkg, p := range s.Policy {
		ctx := "policy[" + pkg + "]"
		if err := checkNames(ctx, p.Criteria); err != nil {
			return err
		}
		if err := checkNames(ctx, p.DevCriteria); err != nil {
			return err
		}
		if err := checkDepCriteria(ctx, p.DependencyCriteria); err != nil {
			return err
		}
	}
	return nil
}

// ClearExemptions removes every exemption entry, as the first step of
// exemption minimization.
func (s *Store) ClearExemptions() {
	s.Exemptions = map[string][]ExemptionEntry{}
}

// Clone returns a deep-enough copy of s for the minimizer to mutate without
// disturbing the caller's original store.
func (s *Store) Clone() *Store {
	out := NewStore()
	out.DefaultCriteria = append([]CriteriaName{}, s.DefaultCriteria...)
	for k, v := range s.Criteria {
		out.Criteria[k] = v
	}
	for k, v := range s.Audits {
		out.Audits[k] = append([]AuditEntry{}, v...)
	}
	for k, v := range s.Exemptions {
		out.Exemptions[k] = append([]ExemptionEntry{}, v...)
	}
	for k, v := range s.Policy {
		out.Policy[k] = v
	}
	for k, v := range s.Imports {
		out.Imports[k] = v
	}
	return out
}

