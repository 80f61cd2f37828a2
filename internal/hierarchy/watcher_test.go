package hierarchy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forgeloop.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	changes := make(chan ValidationResult, 4)
	w, err := NewWatcher(path, func(cfg *Config, result ValidationResult) {
		changes <- result
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	updated := DefaultConfig()
	updated.EscalationPolicy = EscalationAuto
	if err := updated.Save(path); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-changes:
		if !result.Valid {
			t.Fatalf("valid change reported invalid: %v", result.Errors)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if got := w.Current().EscalationPolicy; got != EscalationAuto {
		t.Errorf("Current().EscalationPolicy = %q, want auto", got)
	}
}

func TestWatcherRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forgeloop.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	changes := make(chan ValidationResult, 4)
	w, err := NewWatcher(path, func(cfg *Config, result ValidationResult) {
		changes <- result
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Duplicate level 0 makes the config invalid.
	bad := DefaultConfig()
	bad.Layers[1].Level = LevelIntent
	if err := bad.Save(path); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-changes:
		if result.Valid {
			t.Fatal("invalid change reported valid")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	// The last good config must survive the rejected reload.
	if got := len(w.Current().Layers); got != 4 {
		t.Errorf("Current() should keep the last valid config, got %d layers", got)
	}
	if w.Current().Layers[1].Level != LevelPlanning {
		t.Error("rejected config must not replace the current one")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forgeloop.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	changes := make(chan ValidationResult, 4)
	w, err := NewWatcher(path, func(cfg *Config, result ValidationResult) {
		changes <- result
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changes:
		t.Fatal("unrelated file change triggered a reload")
	case <-time.After(1 * time.Second):
	}
}
