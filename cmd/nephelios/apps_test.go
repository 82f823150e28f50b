package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/example/nephelios/internal/backend"
	"github.com/example/nephelios/internal/progress"
)

const appsPayload = `{"apps":[
  {"container_id":"c1","app_name":"landy","app_type":"nodejs","domain":"landy.localhost","github_url":"https://github.com/acme/landy","status":"running","created_at":"2024-03-20T10:00:00Z"},
  {"container_id":"c2","app_name":"grafiti","app_type":"python","domain":"grafiti.localhost","github_url":"https://github.com/acme/grafiti","status":"exited","created_at":"2024-03-19T09:00:00Z"}
]}`

func TestAppsListFormats(t *testing.T) {
	isolateConfig(t)
	fake := newFakeBackend(t, nil)
	fake.apps = appsPayload
	srv := fake.start()
	base := []string{"apps", "list", "--backend-url", srv.URL, "--backend-port", "0"}

	out, _, err := executeRoot(t, base...)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "grafiti") || !strings.Contains(out, "exited") {
		t.Fatalf("unexpected table:\n%s", out)
	}

	out, _, err = executeRoot(t, append(base, "--format", "json")...)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var apps []progress.DeployedApplication
	if err := json.Unmarshal([]byte(out), &apps); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(apps) != 2 || apps[1].ContainerID != "c2" {
		t.Fatalf("unexpected json apps %+v", apps)
	}

	out, _, err = executeRoot(t, append(base, "--format", "yaml")...)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	apps = nil
	if err := yaml.Unmarshal([]byte(out), &apps); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if len(apps) != 2 || apps[0].GitHubURL != "https://github.com/acme/landy" {
		t.Fatalf("unexpected yaml apps %+v", apps)
	}

	if _, _, err := executeRoot(t, append(base, "--format", "xml")...); err == nil {
		t.Fatalf("expected unsupported format to fail")
	}
}

func TestAppsGet(t *testing.T) {
	isolateConfig(t)
	fake := newFakeBackend(t, nil)
	fake.apps = appsPayload
	srv := fake.start()

	out, _, err := executeRoot(t, "apps", "get", "landy", "--backend-url", srv.URL, "--backend-port", "0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, "https://github.com/acme/landy") {
		t.Fatalf("unexpected card:\n%s", out)
	}

	_, _, err = executeRoot(t, "apps", "get", "missing", "--backend-url", srv.URL, "--backend-port", "0")
	if !errors.Is(err, backend.ErrAppNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHistoryCommandEmpty(t *testing.T) {
	isolateConfig(t)
	out, _, err := executeRoot(t, "history", "--history", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No deployments recorded yet.") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestHistoryCommandListsDeployments(t *testing.T) {
	isolateConfig(t)
	fake := newFakeBackend(t, landyFrames)
	srv := fake.start()
	historyPath := filepath.Join(t.TempDir(), "history.db")
	if _, _, err := executeRoot(t, deployArgs(srv.URL, historyPath)...); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	out, _, err := executeRoot(t, "history", "--history", historyPath, "--format", "json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var rows []historyRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "landy" || rows[0].Status != "running" {
		t.Fatalf("unexpected history rows %+v", rows)
	}
}
