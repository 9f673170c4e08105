// Package config loads GatewayConfig from the MSB_* environment variables
// documented in the gateway's external interfaces, using small
// envOrDefault/parsePositiveInt helpers and validating the result.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opensandbox/msbgateway/internal/msberrors"
	"github.com/opensandbox/msbgateway/pkg/types"
)

// Load reads configuration from the environment, applies defaults, and
// validates the result. A non-nil error is always a *msberrors.ConfigurationError.
func Load() (*types.GatewayConfig, error) {
	volumeMappings, err := parseSharedVolumeMappings(os.Getenv("MSB_SHARED_VOLUME_PATH"))
	if err != nil {
		return nil, err
	}

	defaultFlavor, err := parseDefaultFlavor(envOrDefault("MSB_DEFAULT_FLAVOR", "small"))
	if err != nil {
		return nil, err
	}

	sessionTimeout, err := parsePositiveIntSeconds("MSB_SESSION_TIMEOUT", 1800)
	if err != nil {
		return nil, err
	}
	maxSessions, err := parsePositiveInt("MSB_MAX_SESSIONS", 10)
	if err != nil {
		return nil, err
	}
	cleanupInterval, err := parsePositiveIntSeconds("MSB_CLEANUP_INTERVAL", 60)
	if err != nil {
		return nil, err
	}
	sandboxStartTimeout, err := parsePositiveFloatSeconds("MSB_SANDBOX_START_TIMEOUT", 180.0)
	if err != nil {
		return nil, err
	}
	executionTimeout, err := parsePositiveIntSeconds("MSB_EXECUTION_TIMEOUT", 300)
	if err != nil {
		return nil, err
	}
	orphanCleanupInterval, err := parsePositiveIntSeconds("MSB_ORPHAN_CLEANUP_INTERVAL", 600)
	if err != nil {
		return nil, err
	}

	var maxTotalMemoryMB *int
	if v := os.Getenv("MSB_MAX_TOTAL_MEMORY_MB"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return nil, &msberrors.ConfigurationError{Message: fmt.Sprintf("MSB_MAX_TOTAL_MEMORY_MB must be a positive integer, got %q", v)}
		}
		maxTotalMemoryMB = &n
	}

	enableLRU := true
	if v := os.Getenv("MSB_ENABLE_LRU_EVICTION"); v != "" {
		enableLRU = strings.EqualFold(v, "true") || v == "1"
	}

	cfg := &types.GatewayConfig{
		ServerURL:               envOrDefault("MSB_SERVER_URL", "http://127.0.0.1:5555"),
		APIKey:                  os.Getenv("MSB_API_KEY"),
		SessionTimeout:          sessionTimeout,
		MaxConcurrentSessions:   maxSessions,
		MaxTotalMemoryMB:        maxTotalMemoryMB,
		CleanupInterval:         cleanupInterval,
		OrphanCleanupInterval:   orphanCleanupInterval,
		DefaultFlavor:           defaultFlavor,
		DefaultExecutionTimeout: executionTimeout,
		SandboxStartTimeout:     sandboxStartTimeout,
		EnableLRUEviction:       enableLRU,
		SharedVolumeMappings:    volumeMappings,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *types.GatewayConfig) error {
	if !strings.HasPrefix(cfg.ServerURL, "http://") && !strings.HasPrefix(cfg.ServerURL, "https://") {
		return &msberrors.ConfigurationError{Message: fmt.Sprintf("invalid MSB_SERVER_URL %q: must start with http:// or https://", cfg.ServerURL)}
	}
	if cfg.CleanupInterval >= cfg.SessionTimeout {
		return &msberrors.ConfigurationError{Message: fmt.Sprintf("MSB_CLEANUP_INTERVAL (%s) must be less than MSB_SESSION_TIMEOUT (%s)", cfg.CleanupInterval, cfg.SessionTimeout)}
	}
	if cfg.MaxTotalMemoryMB != nil && *cfg.MaxTotalMemoryMB < cfg.DefaultFlavor.MemoryMB() {
		return &msberrors.ConfigurationError{Message: fmt.Sprintf("MSB_MAX_TOTAL_MEMORY_MB (%d) is less than the minimum needed for the default flavor (%d)", *cfg.MaxTotalMemoryMB, cfg.DefaultFlavor.MemoryMB())}
	}
	if cfg.MaxConcurrentSessions < 1 {
		return &msberrors.ConfigurationError{Message: "MSB_MAX_SESSIONS must be at least 1"}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parsePositiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, &msberrors.ConfigurationError{Message: fmt.Sprintf("%s must be a positive integer, got %q", key, v)}
	}
	return n, nil
}

func parsePositiveIntSeconds(key string, fallbackSeconds int) (time.Duration, error) {
	n, err := parsePositiveInt(key, fallbackSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveFloatSeconds(key string, fallbackSeconds float64) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(fallbackSeconds * float64(time.Second)), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return 0, &msberrors.ConfigurationError{Message: fmt.Sprintf("%s must be a positive number, got %q", key, v)}
	}
	return time.Duration(f * float64(time.Second)), nil
}

func parseDefaultFlavor(s string) (types.Flavor, error) {
	f, err := types.ParseFlavor(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return "", &msberrors.ConfigurationError{Message: fmt.Sprintf("invalid MSB_DEFAULT_FLAVOR: %v", err)}
	}
	return f, nil
}

// parseSharedVolumeMappings supports both a JSON array and a
// comma-separated list of "host:container" strings.
func parseSharedVolumeMappings(raw string) ([]types.VolumeMapping, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var candidates []string
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
			return nil, &msberrors.ConfigurationError{Message: fmt.Sprintf("invalid JSON in MSB_SHARED_VOLUME_PATH: %v", err)}
		}
	} else {
		candidates = strings.Split(raw, ",")
	}

	mappings := make([]types.VolumeMapping, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		vm, err := types.ParseVolumeMapping(c)
		if err != nil {
			return nil, &msberrors.ConfigurationError{Message: fmt.Sprintf("invalid volume mapping in MSB_SHARED_VOLUME_PATH: %v", err)}
		}
		mappings = append(mappings, vm)
	}
	return mappings, nil
}
