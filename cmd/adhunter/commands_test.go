package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"adhunter/internal/app"
	"adhunter/internal/config"
	"adhunter/internal/model"
)

func TestPrintQueryTable(t *testing.T) {
	pattern := "vespa|lambretta"
	queries := []app.QueryInfo{
		{SearchQuery: model.SearchQuery{Name: "moto", URL: "https://www.subito.it/?q=moto", MinPrice: 1, Enabled: true, Pattern: &pattern, SkipSold: true}, Listings: 12},
		{SearchQuery: model.SearchQuery{Name: "bici", URL: "https://www.subito.it/?q=bici", Pages: 3, MinPrice: 50, MaxPrice: 400}},
	}
	var buf bytes.Buffer
	if err := printQueryTable(&buf, queries); err != nil {
		t.Fatalf("print: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d:\n%s", len(lines), buf.String())
	}
	for _, want := range []string{"moto", "true", "all", "1-∞", "vespa|lambretta", "sold", "12"} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("row %q missing %q", lines[1], want)
		}
	}
	for _, want := range []string{"bici", "false", "3", "50-400"} {
		if !strings.Contains(lines[2], want) {
			t.Fatalf("row %q missing %q", lines[2], want)
		}
	}
}

func TestRunConfig_SavesPushoverKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	var out bytes.Buffer
	e := &env{
		cfg:     config.Default(),
		cfgPath: path,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		out:     &out,
	}

	if err := runConfig(context.Background(), e, []string{"--pushover", "bad-format"}); err == nil {
		t.Fatalf("expected format error")
	}
	if err := runConfig(context.Background(), e, []string{"--pushover", "apptoken:userkey"}); err != nil {
		t.Fatalf("config: %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Pushover.AppToken != "apptoken" || loaded.Pushover.UserKey != "userkey" {
		t.Fatalf("pushover = %+v", loaded.Pushover)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	if code := run(nil); code != 2 {
		t.Fatalf("no command exit = %d", code)
	}
	if code := run([]string{"frobnicate"}); code != 2 {
		t.Fatalf("unknown command exit = %d", code)
	}
}
