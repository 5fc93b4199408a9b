package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"biomecore/internal/core"
	"biomecore/internal/infra/persistence/memory"
)

func TestLoadRunConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := "bundles_dir: /data/bundles\nreplace: true\nmetrics_addr: :9188\nstudies:\n  - /data/one\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadRunConfig(path)
	if err != nil {
		t.Fatalf("loadRunConfig: %v", err)
	}
	if cfg.BundlesDir != "/data/bundles" || !cfg.Replace || cfg.MetricsAddr != ":9188" || len(cfg.Studies) != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRunConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("bundle_dir: typo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadRunConfig(path); err == nil {
		t.Fatal("want error for unknown key")
	}
}

func TestNewParserVocabOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	vocab := "identifier: sample_id\nfields:\n  - name: sample_id\n    kind: identifier\n    essential: true\n    aliases: [tube_id]\n"
	if err := os.WriteFile(path, []byte(vocab), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := newParser(runConfig{SampleVocab: path})
	if err != nil {
		t.Fatalf("newParser: %v", err)
	}
	if f := p.SampleVocab.Resolve("tube_id"); f == nil || f.Name != "sample_id" {
		t.Fatalf("override vocabulary not in effect: %+v", f)
	}
	if f := p.PrepVocab.Resolve("run_prefix"); f == nil {
		t.Fatal("default prep vocabulary must remain")
	}
}

func TestResolveBundleDirs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"1001", "1002"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// A stray file must not become a bundle.
	if err := os.WriteFile(filepath.Join(root, "README"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := runConfig{
		BundlesDir: root,
		Studies:    []string{filepath.Join(root, "1002"), "/elsewhere/1003"},
	}
	dirs, err := resolveBundleDirs(cfg)
	if err != nil {
		t.Fatalf("resolveBundleDirs: %v", err)
	}
	want := []string{
		filepath.Join(root, "1002"),
		"/elsewhere/1003",
		filepath.Join(root, "1001"),
	}
	if len(dirs) != len(want) {
		t.Fatalf("dirs = %v", dirs)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Fatalf("dirs[%d] = %q, want %q", i, dirs[i], want[i])
		}
	}
}

func TestIngestAllContinuesPastFailures(t *testing.T) {
	obs, logs := observer.New(zap.WarnLevel)
	svc := core.NewService(memory.NewStore())
	// Empty directories have no sample sheet, so each bundle fails.
	dirs := []string{t.TempDir(), t.TempDir()}

	failed := ingestAll(context.Background(), svc, dirs, false, zap.New(obs))
	if failed != 2 {
		t.Fatalf("failed = %d, want 2", failed)
	}
	if n := len(logs.FilterMessage("study failed").All()); n != 2 {
		t.Fatalf("failure logs = %d, want 2", n)
	}
}

func TestIngestAllReportsRemainingOnCancel(t *testing.T) {
	obs, logs := observer.New(zap.WarnLevel)
	svc := core.NewService(memory.NewStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failed := ingestAll(ctx, svc, []string{"a", "b", "c"}, false, zap.New(obs))
	if failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}
	entries := logs.FilterMessage("run interrupted").All()
	if len(entries) != 1 {
		t.Fatalf("interrupt logs = %v", entries)
	}
	if got := entries[0].ContextMap()["remaining"]; got != int64(3) {
		t.Fatalf("remaining = %v, want 3", got)
	}
}
