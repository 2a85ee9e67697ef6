package audit

// JSONReport is the structured, serialization-friendly projection of a
// Report plus any suggestions computed from it, matching the external
// report shape: { conclusion, failures?, suggestions?, used_audits? }.
type JSONReport struct {
	Conclusion  string            `json:"conclusion"`
	Failures    []JSONFailure     `json:"failures,omitempty"`
	Suggestions []JSONSuggestion  `json:"suggestions,omitempty"`
	UsedAudits  []JSONUsedAudit   `json:"used_audits,omitempty"`
}

type JSONFailure struct {
	Package         string   `json:"package"`
	Version         string   `json:"version"`
	MissingCriteria []string `json:"missing_criteria"`
	Cause           string   `json:"cause"`
}

type JSONCommand struct {
	Kind string `json:"kind"` // "inspect" | "diff"
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

type JSONSuggestion struct {
	Package  string      `json:"package"`
	Version  string      `json:"version"`
	Command  JSONCommand `json:"command"`
	Diffstat *uint64     `json:"diffstat,omitempty"`
	Criteria []string    `json:"criteria"`
}

type JSONUsedAudit struct {
	Package     string `json:"package"`
	Kind        string `json:"kind"`
	IsExemption bool   `json:"is_exemption,omitempty"`
	ImportPeer  string `json:"import_peer,omitempty"`
}

func (k FailureReason) String() string {
	switch k {
	case ReasonUnreachable:
		return "Unresolved"
	case ReasonViolation:
		return "ViolationConflict"
	case ReasonDepFailed:
		return "DepFailed"
	default:
		return "Unknown"
	}
}

func (k AuditKind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindDelta:
		return "delta"
	case KindViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// ToJSON projects a Report plus suggestions into the wire shape. mapper is
// needed to render CriteriaSet values back into minimal name lists.
func ToJSON(mapper *CriteriaMapper, report Report, suggestions []Suggestion) JSONReport {
	out := JSONReport{}
	switch report.Conclusion {
	case ConclusionSuccess:
		out.Conclusion = "success"
	default:
		out.Conclusion = "fail-vet"
		for _, f := range report.Failures {
			if f.Reason == ReasonViolation {
				out.Conclusion = "fail-audit"
				break
			}
		}
	}

	for _, f := range report.Failures {
		missing := subtract(f.Required, f.Reached)
		out.Failures = append(out.Failures, JSONFailure{
			Package:         f.Package.Name,
			Version:         f.Package.Version.String(),
			MissingCriteria: namesToStrings(mapper.Names(missing)),
			Cause:           f.Reason.String(),
		})
	}

	for _, s := range suggestions {
		js := JSONSuggestion{
			Package:  s.Package.Name,
			Version:  s.Package.Version.String(),
			Criteria: namesToStrings(s.Criteria),
		}
		if s.HasDiffstat {
			d := s.Diffstat
			js.Diffstat = &d
		}
		switch s.Kind {
		case CandidateInspect:
			js.Command = JSONCommand{Kind: "inspect", To: s.Package.Version.String()}
		case CandidateDiff:
			js.Command = JSONCommand{Kind: "diff", From: s.From.String(), To: s.Package.Version.String()}
		}
		out.Suggestions = append(out.Suggestions, js)
	}

	for _, u := range report.Used {
		out.UsedAudits = append(out.UsedAudits, JSONUsedAudit{
			Package:     u.Package.Name,
			Kind:        u.Kind.String(),
			IsExemption: u.IsExemption,
			ImportPeer:  u.ImportPeer,
		})
	}
	return out
}

func namesToStrings(names []CriteriaName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
