package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigValidation(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				ListenAddress: ":7077",
				ServeRoot:     root,
				Parallelism:   4,
				LogLevel:      "info",
			},
			wantErr: false,
		},
		{
			name: "missing listen address",
			config: Config{
				ServeRoot: root,
				LogLevel:  "info",
			},
			wantErr: true,
		},
		{
			name: "missing serve root",
			config: Config{
				ListenAddress: ":7077",
				LogLevel:      "info",
			},
			wantErr: true,
		},
		{
			name: "serve root does not exist",
			config: Config{
				ListenAddress: ":7077",
				ServeRoot:     filepath.Join(root, "missing"),
				LogLevel:      "info",
			},
			wantErr: true,
		},
		{
			name: "negative parallelism",
			config: Config{
				ListenAddress: ":7077",
				ServeRoot:     root,
				Parallelism:   -1,
				LogLevel:      "info",
			},
			wantErr: true,
		},
		{
			name: "bad log level",
			config: Config{
				ListenAddress: ":7077",
				ServeRoot:     root,
				LogLevel:      "loud",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ListenAddress != ":7077" {
		t.Errorf("ListenAddress = %q, want :7077", cfg.ListenAddress)
	}
	if cfg.Parallelism != 4 {
		t.Errorf("Parallelism = %d, want 4", cfg.Parallelism)
	}
	if !cfg.CacheEnabled {
		t.Error("CacheEnabled must default to true")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "globd.yaml")
	contents := "listen_address: \":9900\"\nserve_root: " + root + "\nparallelism: 8\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ListenAddress != ":9900" {
		t.Errorf("ListenAddress = %q, want :9900", cfg.ListenAddress)
	}
	if cfg.Parallelism != 8 {
		t.Errorf("Parallelism = %d, want 8", cfg.Parallelism)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}
