package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type mockTransport struct {
	mu         sync.Mutex
	status     int
	lastURL    string
	lastMethod string
	reqCount   int
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.lastURL = req.URL.String()
	m.lastMethod = req.Method
	m.reqCount++
	m.mu.Unlock()
	return &http.Response{
		StatusCode: m.status,
		Body:       http.NoBody,
		Header:     make(http.Header),
	}, nil
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	validPath := filepath.Join(dir, "valid.json")
	if err := os.WriteFile(validPath, []byte(`{"schedule":"@hourly","seeds":["Aarde"]}`), 0644); err != nil {
		t.Fatal(err)
	}

	noSchedulePath := filepath.Join(dir, "noschedule.json")
	if err := os.WriteFile(noSchedulePath, []byte(`{"seeds":["Aarde"]}`), 0644); err != nil {
		t.Fatal(err)
	}

	noSeedsPath := filepath.Join(dir, "noseeds.json")
	if err := os.WriteFile(noSeedsPath, []byte(`{"schedule":"@hourly","seeds":[]}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(validPath)
	if err != nil {
		t.Fatalf("loadConfig() err = %v", err)
	}
	if cfg.Schedule != "@hourly" || len(cfg.Seeds) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := loadConfig(noSchedulePath); err != errNoSchedule {
		t.Fatalf("err = %v, want errNoSchedule", err)
	}
	if _, err := loadConfig(noSeedsPath); err != errNoSeeds {
		t.Fatalf("err = %v, want errNoSeeds", err)
	}
	if _, err := loadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestSubmitSeed(t *testing.T) {
	transport := &mockTransport{status: http.StatusAccepted}
	client := &http.Client{Transport: transport}
	base, _ := url.Parse("http://api.test")
	s := newScheduler(Config{Schedule: "@hourly", Seeds: []string{"Aarde"}}, base, client)

	s.submitSeed(0, "Albert Einstein")

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.lastMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", transport.lastMethod)
	}
	parsed, _ := url.Parse(transport.lastURL)
	wantQuery := url.Values{"title": {"Albert Einstein"}}.Encode()
	if parsed.Path != "/crawl" || parsed.RawQuery != wantQuery {
		t.Errorf("url = %s, want path=/crawl query=%q", transport.lastURL, wantQuery)
	}
}

func TestSubmitAll(t *testing.T) {
	transport := &mockTransport{status: http.StatusAccepted}
	client := &http.Client{Transport: transport}
	base, _ := url.Parse("http://api.test")
	s := newScheduler(Config{Schedule: "@hourly", Seeds: []string{"Aarde", "Maan"}}, base, client)

	s.submitAll()

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.reqCount != 2 {
		t.Errorf("request count = %d, want 2", transport.reqCount)
	}
}

func TestRunInvalidSchedule(t *testing.T) {
	transport := &mockTransport{status: http.StatusAccepted}
	client := &http.Client{Transport: transport}
	base, _ := url.Parse("http://api.test")
	s := newScheduler(Config{Schedule: "not a cron expr", Seeds: []string{"Aarde"}}, base, client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.run(ctx); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRunSubmitsImmediatelyThenStops(t *testing.T) {
	transport := &mockTransport{status: http.StatusAccepted}
	client := &http.Client{Transport: transport}
	base, _ := url.Parse("http://api.test")
	s := newScheduler(Config{Schedule: "@hourly", Seeds: []string{"Aarde", "Maan"}}, base, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.run(ctx); err != nil {
		t.Fatalf("run() err = %v", err)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.reqCount != 2 {
		t.Errorf("request count = %d, want 2 (immediate submit)", transport.reqCount)
	}
}
