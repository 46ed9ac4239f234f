package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the recurring seed titles and their cron schedule.
type Config struct {
	Schedule string   `json:"schedule"`
	Seeds    []string `json:"seeds"`
}

func main() {
	configPath := flag.String("config", "schedule.json", "Path to JSON config file with schedule and seed titles")
	apiBase := flag.String("api", "http://localhost:8080", "API base URL")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	baseURL, err := url.Parse(*apiBase)
	if err != nil {
		log.Fatal(err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	sched := newScheduler(cfg, baseURL, client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.run(ctx); err != nil {
		log.Fatal(err)
	}
}

type scheduler struct {
	cfg    Config
	base   *url.URL
	client *http.Client
	cron   *cron.Cron
}

func newScheduler(cfg Config, base *url.URL, client *http.Client) *scheduler {
	return &scheduler{
		cfg:    cfg,
		base:   base,
		client: client,
		cron:   cron.New(),
	}
}

// run submits the seeds once immediately, then on every cron tick until ctx
// is cancelled.
func (s *scheduler) run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.submitAll); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.Schedule, err)
	}

	log.Printf("submitting %d seeds immediately, then on schedule %q", len(s.cfg.Seeds), s.cfg.Schedule)
	s.submitAll()
	s.cron.Start()

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	log.Printf("scheduler stopped")
	return nil
}

func (s *scheduler) submitAll() {
	for idx, seed := range s.cfg.Seeds {
		s.submitSeed(idx, seed)
	}
}

func (s *scheduler) submitSeed(idx int, seed string) {
	u := *s.base
	u.Path = "/crawl"
	u.RawQuery = url.Values{"title": {seed}}.Encode()

	resp, err := s.client.Post(u.String(), "", nil)
	if err != nil {
		log.Printf("[%d] seed=%q err=%v", idx, seed, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Printf("[%d] seed=%q status=%d", idx, seed, resp.StatusCode)
		return
	}
	log.Printf("[%d] seed=%q accepted", idx, seed)
}

// loadConfig reads and parses the JSON config file.
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Schedule == "" {
		return cfg, errNoSchedule
	}
	if len(cfg.Seeds) == 0 {
		return cfg, errNoSeeds
	}
	return cfg, nil
}

var (
	errNoSchedule = fmt.Errorf("config has no schedule")
	errNoSeeds    = fmt.Errorf("config has no seeds")
)
