package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/gosqueak/census"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"gosqueak"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "gosqueak.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBootstrapRunInfoCensus(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "[log]\nverbosity = -4\n")
	image := filepath.Join(dir, "hello.image")

	if _, err := runApp(t, "--config", cfg, "bootstrap", image); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := runApp(t, "--config", cfg, "run", image); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, err := runApp(t, "--config", cfg, "info", "--top", "3", image)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"version", "6502", "big-endian", "MethodContext", "classes in use"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}

	out, err = runApp(t, "--config", cfg, "inspect", "--special", "12", image)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "Class: Point") || !strings.Contains(out, "#(x y)") {
		t.Errorf("inspect output:\n%s", out)
	}

	out, err = runApp(t, "--config", cfg, "run", "--profile", "5", image)
	if err != nil {
		t.Fatalf("run --profile: %v", err)
	}
	if !strings.Contains(out, "UndefinedObject>>quit") {
		t.Errorf("profile output missing the quit send:\n%s", out)
	}

	cborFile := filepath.Join(dir, "census.cbor")
	db := filepath.Join(dir, "census.db")
	out, err = runApp(t, "--config", cfg, "census", "--cbor", cborFile, "--db", db, image)
	if err != nil {
		t.Fatalf("census: %v", err)
	}
	if !strings.Contains(out, "Symbol") {
		t.Errorf("census output missing Symbol:\n%s", out)
	}
	data, err := os.ReadFile(cborFile)
	if err != nil {
		t.Fatal(err)
	}
	r, err := census.UnmarshalReport(data)
	if err != nil || r.Objects == 0 {
		t.Fatalf("census file = %+v, %v", r, err)
	}
	store, err := census.OpenStore(db)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if runs, _ := store.Runs(); len(runs) != 1 || runs[0].ID != r.ID {
		t.Errorf("stored runs = %+v, want %s", runs, r.ID)
	}
}

func TestImageFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "[image]\npath = \"mini.image.gz\"\n[log]\nverbosity = -4\n")
	if _, err := runApp(t, "--config", cfg, "bootstrap", filepath.Join(dir, "mini.image.gz")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := runApp(t, "--config", cfg, "run", "--steps", "3"); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestMissingImage(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "[log]\nverbosity = -4\n")
	if _, err := runApp(t, "--config", cfg, "info"); err == nil {
		t.Error("info without an image should fail")
	}
	if _, err := runApp(t, "--config", cfg, "run", filepath.Join(dir, "nope.image")); err == nil {
		t.Error("running a missing image should fail")
	}
}
