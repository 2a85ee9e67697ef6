package pkgctx

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestNewContextDiscoversWorkspaceRoot(t *testing.T) {
	root, err := ioutil.TempDir("", "pkgvet-ctx-root")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)

	if err := ioutil.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	ctx, err := NewContext(sub, nil, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.WorkspaceRoot != root {
		t.Fatalf("expected workspace root %s, got %s", root, ctx.WorkspaceRoot)
	}
	if ctx.StoreDir != filepath.Join(root, "pkgvet") {
		t.Fatalf("expected default store dir under workspace root, got %s", ctx.StoreDir)
	}
}

func TestNewContextHonorsEnvOverrides(t *testing.T) {
	root, err := ioutil.TempDir("", "pkgvet-ctx-root")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)
	if err := ioutil.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	env := []string{
		"PKGVET_WORKSPACE=" + root,
		"PKGVET_STORE=/tmp/custom-store",
		"PKGVET_CACHE=/tmp/custom-cache",
	}
	ctx, err := NewContext("/somewhere/else", env, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.WorkspaceRoot != root {
		t.Fatalf("expected PKGVET_WORKSPACE override, got %s", ctx.WorkspaceRoot)
	}
	if ctx.StoreDir != "/tmp/custom-store" {
		t.Fatalf("expected PKGVET_STORE override, got %s", ctx.StoreDir)
	}
	if ctx.CacheDir != "/tmp/custom-cache" {
		t.Fatalf("expected PKGVET_CACHE override, got %s", ctx.CacheDir)
	}
}

func TestNewContextReturnsErrorWhenNoGoMod(t *testing.T) {
	root, err := ioutil.TempDir("", "pkgvet-ctx-noroot")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)

	if _, err := NewContext(root, nil, Overrides{}); err == nil {
		t.Fatal("expected an error when no go.mod is found above the starting directory")
	}
}

func TestNewContextOverridesBeatEnv(t *testing.T) {
	root, err := ioutil.TempDir("", "pkgvet-ctx-root")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)
	if err := ioutil.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	env := []string{"PKGVET_STORE=/tmp/env-store"}
	ctx, err := NewContext(root, env, Overrides{Store: "/tmp/flag-store"})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.StoreDir != "/tmp/flag-store" {
		t.Fatalf("expected explicit override to beat env var, got %s", ctx.StoreDir)
	}
}
