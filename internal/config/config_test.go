package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawler.PageDelay != 2*time.Second || cfg.Crawler.QueryDelay != 4*time.Second {
		t.Fatalf("unexpected delays: %v %v", cfg.Crawler.PageDelay, cfg.Crawler.QueryDelay)
	}
	if cfg.Crawler.MaxPages != 300 {
		t.Fatalf("expected page ceiling 300, got %d", cfg.Crawler.MaxPages)
	}
	if cfg.Store.Driver != "redis" {
		t.Fatalf("expected redis driver, got %q", cfg.Store.Driver)
	}
}

func TestLoad_FileWithDurationsAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "app": {"log_level": "debug", "run_lock_ttl": "30m"},
  "crawler": {"page_delay": "500ms", "query_delay": "1s", "fetch_mode": "http"},
  "pushover": {"app_token": "tok", "user_key": "usr", "image_timeout": "3s", "send_timeout": "7s"}
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.LogLevel != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.App.LogLevel)
	}
	if cfg.App.RunLockTTL != 30*time.Minute {
		t.Fatalf("expected 30m lock ttl, got %v", cfg.App.RunLockTTL)
	}
	if cfg.Crawler.PageDelay != 500*time.Millisecond || cfg.Crawler.QueryDelay != time.Second {
		t.Fatalf("unexpected delays: %v %v", cfg.Crawler.PageDelay, cfg.Crawler.QueryDelay)
	}
	if cfg.Crawler.RequestTimeout != 30*time.Second {
		t.Fatalf("expected default request timeout, got %v", cfg.Crawler.RequestTimeout)
	}
	if cfg.Pushover.ImageTimeout != 3*time.Second {
		t.Fatalf("expected 3s image timeout, got %v", cfg.Pushover.ImageTimeout)
	}
	if cfg.Pushover.SendTimeout != 7*time.Second {
		t.Fatalf("expected 7s send timeout, got %v", cfg.Pushover.SendTimeout)
	}
	if cfg.Pushover.URLTitle != "Visualizza su Subito" {
		t.Fatalf("expected default url title, got %q", cfg.Pushover.URLTitle)
	}
	if len(cfg.Crawler.AllowedHosts) != 2 {
		t.Fatalf("expected default allowed hosts, got %v", cfg.Crawler.AllowedHosts)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"crawler": {"page_delay": "soon"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "page_delay") {
		t.Fatalf("expected page_delay error, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_PAGE_DELAY", "250ms")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("PUSHOVER_APP_TOKEN", "env-token")
	t.Setenv("DB_USER", "hunter")
	t.Setenv("DB_NAME", "ads")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawler.PageDelay != 250*time.Millisecond {
		t.Fatalf("expected env page delay, got %v", cfg.Crawler.PageDelay)
	}
	if cfg.Store.Driver != "postgres" {
		t.Fatalf("expected env store driver, got %q", cfg.Store.Driver)
	}
	if cfg.Pushover.AppToken != "env-token" {
		t.Fatalf("expected env pushover token, got %q", cfg.Pushover.AppToken)
	}
	if !strings.HasPrefix(cfg.MySQL.DSN, "hunter:") || !strings.Contains(cfg.MySQL.DSN, "/ads") {
		t.Fatalf("expected dsn rebuilt from env, got %q", cfg.MySQL.DSN)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	if err := cfg.SetPushoverKeys("apptoken:userkey"); err != nil {
		t.Fatalf("set keys: %v", err)
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Pushover.AppToken != "apptoken" || loaded.Pushover.UserKey != "userkey" {
		t.Fatalf("pushover keys not persisted: %+v", loaded.Pushover)
	}
	if loaded.Crawler.PageDelay != cfg.Crawler.PageDelay {
		t.Fatalf("page delay not persisted: %v", loaded.Crawler.PageDelay)
	}
	if loaded.Pushover.SendTimeout != cfg.Pushover.SendTimeout {
		t.Fatalf("send timeout not persisted: %v", loaded.Pushover.SendTimeout)
	}
}

func TestSetPushoverKeys_InvalidFormat(t *testing.T) {
	cfg := Default()
	for _, in := range []string{"", "only-token", "a:b:c", ":key", "token:"} {
		if err := cfg.SetPushoverKeys(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	cfg.Store.Driver = "sqlite"
	cfg.Crawler.FetchMode = "carrier-pigeon"
	cfg.Pushover.AppToken = "only-token"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"store.driver", "fetch_mode", "pushover"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
