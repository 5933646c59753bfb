package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.RAMSize != DefaultRAMSize {
		t.Fatalf("RAMSize = %d, want default %d", p.RAMSize, DefaultRAMSize)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yml")
	contents := "ram_size: 4096\nhost_exit: 2147483648\nmax_instructions: 1000\ntrace: true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.RAMSize != 4096 || p.HostExit != 2147483648 || p.MaxInstructions != 1000 || !p.Trace {
		t.Fatalf("got %+v", p)
	}
}

func TestEngineConfigTranslation(t *testing.T) {
	p := Profile{RAMSize: 1024, HostExit: 2048, MaxInstructions: 10}
	cfg := p.EngineConfig()
	if cfg.RAMSize != 1024 || cfg.HostExit != 2048 || cfg.MaxInstructions != 10 {
		t.Fatalf("got %+v", cfg)
	}
}
