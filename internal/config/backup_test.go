package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBackupUserConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "docsearch")
	configPath := filepath.Join(configDir, "config.yaml")

	t.Run("no config exists", func(t *testing.T) {
		backupPath, err := BackupUserConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backupPath != "" {
			t.Errorf("expected empty backup path for non-existent config, got %s", backupPath)
		}
	})

	t.Run("backup existing config", func(t *testing.T) {
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			t.Fatalf("failed to create config dir: %v", err)
		}
		testContent := "version: 1\nsearch:\n  collection_name: docs_v2\n"
		if err := os.WriteFile(configPath, []byte(testContent), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		backupPath, err := BackupUserConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backupPath == "" {
			t.Fatal("expected non-empty backup path")
		}

		backupContent, err := os.ReadFile(backupPath)
		if err != nil {
			t.Fatalf("failed to read backup: %v", err)
		}
		if string(backupContent) != testContent {
			t.Errorf("backup content mismatch:\ngot: %s\nwant: %s", backupContent, testContent)
		}
		if !strings.Contains(filepath.Base(backupPath), BackupSuffix) {
			t.Errorf("backup filename should carry %s: %s", BackupSuffix, backupPath)
		}
	})
}

func TestListUserConfigBackups(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "docsearch")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	t.Run("no backups exist", func(t *testing.T) {
		backups, err := ListUserConfigBackups()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(backups) != 0 {
			t.Errorf("expected no backups, got %d", len(backups))
		}
	})

	t.Run("lists backups newest first", func(t *testing.T) {
		for i, stamp := range []string{"20240101-120000", "20240102-120000"} {
			name := configPath + BackupSuffix + "." + stamp
			if err := os.WriteFile(name, []byte("v"), 0o644); err != nil {
				t.Fatalf("failed to write backup %d: %v", i, err)
			}
			// Distinct mtimes so the newest-first sort is observable.
			mt := time.Now().Add(time.Duration(i) * time.Second)
			if err := os.Chtimes(name, mt, mt); err != nil {
				t.Fatalf("failed to set mtime: %v", err)
			}
		}

		backups, err := ListUserConfigBackups()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(backups) != 2 {
			t.Fatalf("expected 2 backups, got %d", len(backups))
		}
		if !strings.HasSuffix(backups[0], "20240102-120000") {
			t.Errorf("expected newest backup first, got %v", backups)
		}
	})
}

func TestBackupUserConfig_CleansUpOldBackups(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "docsearch")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	// Seed more than MaxBackups stale backups with increasing mtimes.
	for i := 0; i < MaxBackups+2; i++ {
		name := configPath + BackupSuffix + "." + time.Now().Add(time.Duration(i)*time.Minute).Format("20060102-150405")
		if err := os.WriteFile(name, []byte("old"), 0o644); err != nil {
			t.Fatalf("failed to seed backup: %v", err)
		}
		mt := time.Now().Add(time.Duration(i-10) * time.Hour)
		if err := os.Chtimes(name, mt, mt); err != nil {
			t.Fatalf("failed to set mtime: %v", err)
		}
	}

	if _, err := BackupUserConfig(); err != nil {
		t.Fatalf("backup failed: %v", err)
	}

	backups, err := ListUserConfigBackups()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(backups) > MaxBackups {
		t.Errorf("expected at most %d backups after cleanup, got %d", MaxBackups, len(backups))
	}
}

func TestRestoreUserConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "docsearch")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	t.Run("missing backup file", func(t *testing.T) {
		if err := RestoreUserConfig(filepath.Join(configDir, "nope.bak")); err == nil {
			t.Fatal("expected error for missing backup file")
		}
	})

	t.Run("restores content", func(t *testing.T) {
		if err := os.WriteFile(configPath, []byte("current\n"), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		backupPath := configPath + BackupSuffix + ".20240101-120000"
		if err := os.WriteFile(backupPath, []byte("restored\n"), 0o644); err != nil {
			t.Fatalf("failed to write backup: %v", err)
		}

		if err := RestoreUserConfig(backupPath); err != nil {
			t.Fatalf("restore failed: %v", err)
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("failed to read config: %v", err)
		}
		if string(data) != "restored\n" {
			t.Errorf("expected restored content, got %q", data)
		}
	})
}
