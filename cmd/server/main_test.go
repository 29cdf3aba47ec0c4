package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/promptrank/internal/core"
)

func TestGetConfigPath(t *testing.T) {
	t.Cleanup(func() { configPath = "" })

	t.Setenv("CONFIG_PATH", "/etc/promptrank/config.yaml")
	if got := getConfigPath(); got != "/etc/promptrank/config.yaml" {
		t.Errorf("expected env path, got %s", got)
	}

	configPath = "flag.yaml"
	if got := getConfigPath(); got != "flag.yaml" {
		t.Errorf("expected flag path, got %s", got)
	}

	configPath = ""
	t.Setenv("CONFIG_PATH", "")
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if got := getConfigPath(); got != filepath.Join(cwd, "config.yaml") {
		t.Errorf("expected ./config.yaml, got %s", got)
	}
}

func TestDefineServer_CORS(t *testing.T) {
	config := core.DefaultConfig()
	config.CORSOrigins = []string{"http://localhost:3000"}
	e := defineServer(config)
	e.GET("/probe", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/probe/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("expected CORS header for allowed origin, got %q", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("expected b, got %s", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("expected empty, got %s", got)
	}
}
