package config

import "testing"

func clearMSBEnv(t *testing.T) {
	for _, k := range []string{
		"MSB_SERVER_URL", "MSB_API_KEY", "MSB_SESSION_TIMEOUT", "MSB_MAX_SESSIONS",
		"MSB_CLEANUP_INTERVAL", "MSB_DEFAULT_FLAVOR", "MSB_SANDBOX_START_TIMEOUT",
		"MSB_EXECUTION_TIMEOUT", "MSB_MAX_TOTAL_MEMORY_MB", "MSB_SHARED_VOLUME_PATH",
		"MSB_ORPHAN_CLEANUP_INTERVAL", "MSB_ENABLE_LRU_EVICTION",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearMSBEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "http://127.0.0.1:5555" {
		t.Errorf("unexpected default server url: %s", cfg.ServerURL)
	}
	if cfg.MaxConcurrentSessions != 10 {
		t.Errorf("unexpected default max sessions: %d", cfg.MaxConcurrentSessions)
	}
	if !cfg.EnableLRUEviction {
		t.Error("expected LRU eviction enabled by default")
	}
}

func TestLoad_RejectsInvalidServerURL(t *testing.T) {
	clearMSBEnv(t)
	t.Setenv("MSB_SERVER_URL", "ftp://example.com")

	if _, err := Load(); err == nil {
		t.Fatal("expected a configuration error for a non-http(s) server url")
	}
}

func TestLoad_RejectsCleanupIntervalNotLessThanSessionTimeout(t *testing.T) {
	clearMSBEnv(t)
	t.Setenv("MSB_SESSION_TIMEOUT", "60")
	t.Setenv("MSB_CLEANUP_INTERVAL", "60")

	if _, err := Load(); err == nil {
		t.Fatal("expected rejection when cleanup interval >= session timeout")
	}
}

func TestLoad_RejectsMemoryCapBelowDefaultFlavor(t *testing.T) {
	clearMSBEnv(t)
	t.Setenv("MSB_DEFAULT_FLAVOR", "large")
	t.Setenv("MSB_MAX_TOTAL_MEMORY_MB", "100")

	if _, err := Load(); err == nil {
		t.Fatal("expected rejection when the memory cap can't fit even one default-flavor session")
	}
}

func TestLoad_ParsesCommaSeparatedVolumeMappings(t *testing.T) {
	clearMSBEnv(t)
	t.Setenv("MSB_SHARED_VOLUME_PATH", "/host/a:/container/a,/host/b:/container/b")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.SharedVolumeMappings) != 2 {
		t.Fatalf("expected 2 volume mappings, got %d", len(cfg.SharedVolumeMappings))
	}
}

func TestLoad_ParsesJSONArrayVolumeMappings(t *testing.T) {
	clearMSBEnv(t)
	t.Setenv("MSB_SHARED_VOLUME_PATH", `["/host/a:/container/a"]`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.SharedVolumeMappings) != 1 {
		t.Fatalf("expected 1 volume mapping, got %d", len(cfg.SharedVolumeMappings))
	}
}

func TestLoad_RejectsUnrecognizedDefaultFlavor(t *testing.T) {
	clearMSBEnv(t)
	t.Setenv("MSB_DEFAULT_FLAVOR", "xlarge")

	if _, err := Load(); err == nil {
		t.Fatal("expected rejection for an unrecognized default flavor")
	}
}
