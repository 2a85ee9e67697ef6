package providers

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := ioutil.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTreeDifferIdenticalTrees(t *testing.T) {
	a, err := ioutil.TempDir("", "pkgvet-difftree-a")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(a)
	b, err := ioutil.TempDir("", "pkgvet-difftree-b")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(b)

	writeTree(t, a, map[string]string{"main.go": "package main\n\nfunc main() {}\n"})
	writeTree(t, b, map[string]string{"main.go": "package main\n\nfunc main() {}\n"})

	n, err := (TreeDiffer{}).Diffstat(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected zero diffstat for identical trees, got %d", n)
	}
}

func TestTreeDifferDetectsChangedAndAddedFiles(t *testing.T) {
	a, err := ioutil.TempDir("", "pkgvet-difftree-a")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(a)
	b, err := ioutil.TempDir("", "pkgvet-difftree-b")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(b)

	writeTree(t, a, map[string]string{"main.go": "line1\nline2\nline3\n"})
	writeTree(t, b, map[string]string{
		"main.go": "line1\nCHANGED\nline3\n",
		"new.go":  "extra1\nextra2\n",
	})

	n, err := (TreeDiffer{}).Diffstat(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected a nonzero diffstat when a line changed and a file was added")
	}
}
