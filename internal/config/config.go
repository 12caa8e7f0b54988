// Package config loads deployment settings from the environment. Clinics run
// the whole stack from a .env file next to the binary; every setting has an
// offline-safe default.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the resolved deployment configuration.
type Config struct {
	Env          string
	DataDir      string
	OutputDir    string
	SyncDir      string
	SyncInterval time.Duration

	CatalogPath     string
	InventoryPath   string
	CaseLibraryPath string

	// WatchAddr serves the progress WebSocket endpoint; empty disables it.
	WatchAddr string

	GeminiModel  string
	EnableGemini bool
}

// Load reads .env (if present) and resolves the configuration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := firstNonEmpty(strings.TrimSpace(os.Getenv("AEGIS_ENV")), "local")
	dataDir := firstNonEmpty(strings.TrimSpace(os.Getenv("AEGIS_DATA_DIR")), "data")

	interval := 30 * time.Second
	if raw := strings.TrimSpace(os.Getenv("AEGIS_SYNC_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		interval = d
	}

	return &Config{
		Env:             env,
		DataDir:         dataDir,
		OutputDir:       firstNonEmpty(strings.TrimSpace(os.Getenv("AEGIS_OUTPUT_DIR")), "out"),
		SyncDir:         firstNonEmpty(strings.TrimSpace(os.Getenv("AEGIS_SYNC_DIR")), filepath.Join(dataDir, "remote_board")),
		SyncInterval:    interval,
		CatalogPath:     strings.TrimSpace(os.Getenv("AEGIS_CATALOG")),
		InventoryPath:   firstNonEmpty(strings.TrimSpace(os.Getenv("AEGIS_INVENTORY")), filepath.Join(dataDir, "local_inventory.json")),
		CaseLibraryPath: firstNonEmpty(strings.TrimSpace(os.Getenv("AEGIS_CASE_LIBRARY")), filepath.Join(dataDir, "case_library.json")),
		WatchAddr:       strings.TrimSpace(os.Getenv("AEGIS_WATCH_ADDR")),
		GeminiModel:     firstNonEmpty(strings.TrimSpace(os.Getenv("AEGIS_GEMINI_MODEL")), "gemini-2.0-flash"),
		EnableGemini:    strings.TrimSpace(os.Getenv("GEMINI_API_KEY")) != "",
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
