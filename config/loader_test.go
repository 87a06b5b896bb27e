package config

import (
	"os"
	"testing"
)

const testConfig = `sources:
  - name: upstream
    kind: http
    url: http://traffic.example.com/traff
    pollIntervalS: 120
  - name: demo
    kind: mock
    feedFile: demo-feed.xml
storage:
  cachePath: /var/cache/traff-go/messages.xml
manager:
  renderThrottleS: 5
`

func writeConfig(t *testing.T, content string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
	if err := os.WriteFile("config.yml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAppConfig(t *testing.T) {
	writeConfig(t, testConfig)
	if err := LoadAppConfig(); err != nil {
		t.Fatalf("LoadAppConfig() error = %v", err)
	}

	if len(Config.Sources) != 2 {
		t.Fatalf("loaded %d sources, want 2", len(Config.Sources))
	}
	if s := Config.Sources[0]; s.Kind != "http" || s.PollIntervalS != 120 {
		t.Errorf("first source = %+v", s)
	}
	if Config.Storage.CachePath != "/var/cache/traff-go/messages.xml" {
		t.Errorf("cache path = %q", Config.Storage.CachePath)
	}

	// Explicit values survive, the rest is defaulted.
	if Config.Manager.RenderThrottleS != 5 {
		t.Errorf("render throttle = %d, want 5", Config.Manager.RenderThrottleS)
	}
	if Config.Manager.UpdateIntervalS != 60 {
		t.Errorf("update interval = %d, want the 60 default", Config.Manager.UpdateIntervalS)
	}
	if Config.Manager.NetworkErrorTimeoutS != 1200 {
		t.Errorf("network error timeout = %d, want the 1200 default", Config.Manager.NetworkErrorTimeoutS)
	}
}

func TestLoadAppConfigRejectsBadSource(t *testing.T) {
	writeConfig(t, `sources:
  - name: broken
    kind: carrier-pigeon
`)
	if err := LoadAppConfig(); err == nil {
		t.Error("LoadAppConfig() accepted an unknown source kind")
	}
}

func TestSelectSource(t *testing.T) {
	writeConfig(t, testConfig)
	if err := LoadAppConfig(); err != nil {
		t.Fatal(err)
	}

	if s, ok := SelectSource("demo"); !ok || s.Kind != "mock" {
		t.Errorf("SelectSource(demo) = %+v, %v", s, ok)
	}
	if s, ok := SelectSource(""); !ok || s.Name != "upstream" {
		t.Errorf("SelectSource() = %+v, %v, want the first source", s, ok)
	}
	if _, ok := SelectSource("nope"); ok {
		t.Error("SelectSource(nope) reported ok")
	}
}
