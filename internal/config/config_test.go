package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so the host environment does not
// leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "STORE_DRIVER", "GOOGLE_CLOUD_PROJECT", "GOOGLE_APPLICATION_CREDENTIALS",
		"MONGO_URI", "MONGO_DATABASE", "SESSION_SECRET", "SESSION_COOKIE_NAME", "SESSION_MAX_AGE",
		"SESSION_COOKIE_SECURE", "LOG_LEVEL", "LOG_FORMAT", "LINE_CHANNEL_TOKEN", "LINE_CHANNEL_SECRET",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, dotenv, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if dotenv {
		t.Error("reported a .env file in an empty directory")
	}
	if cfg.Port != "8080" || cfg.StoreDriver != DriverMongo || cfg.MongoURI != "mongodb://mongo:27017/todo_app" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Session.MaxAge != 24*time.Hour || cfg.Session.CookieName != "connect.sid" || cfg.Session.Secure {
		t.Errorf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.Line.Enabled() {
		t.Error("LINE enabled without credentials")
	}
}

func TestLoad_FirestoreWhenProjectSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "demo")

	cfg, _, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StoreDriver != DriverFirestore {
		t.Fatalf("driver = %q", cfg.StoreDriver)
	}
}

func TestLoad_FilePrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
port = "9000"
store_driver = "memory"

[session]
secret = "from-file"
max_age = "2h"

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")

	cfg, _, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9100" {
		t.Errorf("env should override file, port = %q", cfg.Port)
	}
	if cfg.StoreDriver != DriverMemory || cfg.Session.Secret != "from-file" || cfg.Session.MaxAge != 2*time.Hour {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log config = %+v", cfg.Log)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	if err := os.WriteFile(".env", []byte("STORE_DRIVER=memory\nLINE_CHANNEL_TOKEN=tok\nLINE_CHANNEL_SECRET=sec\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, dotenv, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !dotenv || cfg.StoreDriver != DriverMemory || !cfg.Line.Enabled() {
		t.Fatalf("dotenv=%v cfg=%+v", dotenv, cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "redis"}, "unknown store driver"},
		{"firestore without project", map[string]string{"STORE_DRIVER": "firestore"}, "GOOGLE_CLOUD_PROJECT"},
		{"bad max age", map[string]string{"SESSION_MAX_AGE": "soon"}, "SESSION_MAX_AGE"},
		{"negative max age", map[string]string{"SESSION_MAX_AGE": "-1h"}, "max age must be positive"},
		{"bad secure flag", map[string]string{"SESSION_COOKIE_SECURE": "maybe"}, "SESSION_COOKIE_SECURE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, _, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
