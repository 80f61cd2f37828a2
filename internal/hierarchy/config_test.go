package hierarchy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("missing file should yield defaults (-want +got):\n%s", diff)
	}
}

func TestLoadOmittedFieldsKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forgeloop.yaml")
	data := []byte("escalation_policy: auto\nglobal_timeout_ms: 120000\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EscalationPolicy != EscalationAuto {
		t.Errorf("EscalationPolicy = %q, want auto", cfg.EscalationPolicy)
	}
	if cfg.GlobalTimeoutMs != 120000 {
		t.Errorf("GlobalTimeoutMs = %d, want 120000", cfg.GlobalTimeoutMs)
	}
	// Fields the file omits must keep their defaults, including the
	// non-zero-default Enabled flag.
	if !cfg.Enabled {
		t.Error("omitted enabled must default to true")
	}
	if len(cfg.Layers) != 4 {
		t.Errorf("omitted layers must keep the default topology, got %d", len(cfg.Layers))
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forgeloop.yaml")

	want := DefaultConfig()
	want.EscalationPolicy = EscalationManual
	want.GlobalTimeoutMs = 42000
	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeZeroValuesKeepDefaults(t *testing.T) {
	user := &Config{
		Enabled:          true,
		EscalationPolicy: EscalationAuto,
	}
	cfg := Merge(user)

	if cfg.EscalationPolicy != EscalationAuto {
		t.Errorf("EscalationPolicy = %q, want auto", cfg.EscalationPolicy)
	}
	if cfg.GlobalTimeoutMs != DefaultConfig().GlobalTimeoutMs {
		t.Errorf("GlobalTimeoutMs = %d, want default", cfg.GlobalTimeoutMs)
	}
	if len(cfg.Layers) != 4 {
		t.Errorf("empty user layers must keep the default topology, got %d", len(cfg.Layers))
	}
}

func TestMergeReplacesLayersWholesale(t *testing.T) {
	user := &Config{
		Enabled: true,
		Layers: []LayerConfig{
			{Level: LevelExecution, SupervisorAgent: "lead", Workers: []string{"w"}, MaxConcurrency: 1, TimeoutMs: 1000},
		},
	}
	cfg := Merge(user)
	if len(cfg.Layers) != 1 {
		t.Fatalf("user layers must replace defaults wholesale, got %d layers", len(cfg.Layers))
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FORGELOOP_COMPAT_MODE", "true")
	t.Setenv("FORGELOOP_GLOBAL_TIMEOUT_MS", "90000")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.BackwardCompatibilityMode {
		t.Error("FORGELOOP_COMPAT_MODE must override compat mode")
	}
	if cfg.GlobalTimeoutMs != 90000 {
		t.Errorf("GlobalTimeoutMs = %d, want env override 90000", cfg.GlobalTimeoutMs)
	}
}

func TestLayerTimeoutFallback(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.LayerTimeout(LevelTool); got != 30*time.Second {
		t.Errorf("LayerTimeout(3) = %v, want 30s", got)
	}
	if got := cfg.LayerTimeout(99); got != cfg.GlobalTimeout() {
		t.Errorf("unknown level must fall back to global timeout, got %v", got)
	}
}
