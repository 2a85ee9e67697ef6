package audit

import "testing"

func TestParseFilterExprBasics(t *testing.T) {
	cases := []string{
		"include(name(example.com/lib))",
		"exclude(any(is_dev_only(true),is_third_party(false)))",
		"include(all(is_root(false),not(is_dev_only(true))))",
		"include(version(1.2.3))",
	}
	for _, c := range cases {
		if _, err := ParseFilterExpr(c); err != nil {
			t.Errorf("ParseFilterExpr(%q): unexpected error %v", c, err)
		}
	}
}

func TestParseFilterExprErrors(t *testing.T) {
	cases := []string{
		"",
		"include(",
		"include(bogus(true))",
		"include(is_root(maybe))",
		"include(any(is_root(true)))", // any() needs >= 2 sub-expressions
		"include(is_root(true)) extra",
	}
	for _, c := range cases {
		if _, err := ParseFilterExpr(c); err == nil {
			t.Errorf("ParseFilterExpr(%q): expected an error", c)
		}
	}
}

func TestParseFilterExprOffset(t *testing.T) {
	_, err := ParseFilterExpr("include(bogus(true))")
	fpe, ok := err.(*FilterParseError)
	if !ok {
		t.Fatalf("expected *FilterParseError, got %T", err)
	}
	if fpe.Offset != len("include(") {
		t.Errorf("expected offset %d, got %d", len("include("), fpe.Offset)
	}
}
