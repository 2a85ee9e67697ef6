package main

import (
	"reflect"
	"testing"

	"github.com/pkgvet/pkgvet/audit"
)

func TestCriteriaNames(t *testing.T) {
	cases := []struct {
		csv  string
		want []audit.CriteriaName
	}{
		{"safe-to-run", []audit.CriteriaName{"safe-to-run"}},
		{"safe-to-run,safe-to-deploy", []audit.CriteriaName{"safe-to-run", "safe-to-deploy"}},
		{" safe-to-run , safe-to-deploy ", []audit.CriteriaName{"safe-to-run", "safe-to-deploy"}},
		{"", nil},
		{",,", nil},
	}
	for _, c := range cases {
		got := criteriaNames(c.csv)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("criteriaNames(%q) = %v, want %v", c.csv, got, c.want)
		}
	}
}
