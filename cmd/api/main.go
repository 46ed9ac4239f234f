package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"wandering-wikipedian/common"
	"wandering-wikipedian/internal/graph"
	"wandering-wikipedian/internal/kafka"
	"wandering-wikipedian/internal/models"
	"wandering-wikipedian/internal/store"
)

type server struct {
	prod   kafka.JobProducer
	store  store.StatusStore
	driver graph.DriverSessioner
}

func newServer(prod kafka.JobProducer, store store.StatusStore, driver graph.DriverSessioner) *server {
	return &server{
		prod:   prod,
		store:  store,
		driver: driver,
	}
}

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) graph.SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	topic := common.GetEnv("KAFKA_TOPIC", "wandering.crawl.frontier")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	neo4jURI := common.GetEnv("NEO4J_URI", "neo4j://localhost:7687")
	neo4jUser := common.GetEnv("NEO4J_USER", "neo4j")
	neo4jPassword := common.GetEnv("NEO4J_PASSWORD", "neo4j")

	prod := kafka.NewProducer(broker, topic)
	defer func() {
		if err := prod.Close(); err != nil {
			log.Printf("failed to close producer: %v", err)
		}
	}()

	statusStore := store.NewRedisStatusStore(redisAddr, "crawl:status:", 24*time.Hour)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	driver, err := neo4j.NewDriverWithContext(neo4jURI, neo4j.BasicAuth(neo4jUser, neo4jPassword, ""))
	if err != nil {
		log.Fatalf("neo4j driver error: %v", err)
	}
	defer func() {
		if err := driver.Close(context.Background()); err != nil {
			log.Printf("neo4j close error: %v", err)
		}
	}()

	srv := newServer(prod, statusStore, &neo4jDriver{driver: driver})

	mux := http.NewServeMux()
	mux.HandleFunc("/crawl", srv.handleCrawl)
	mux.HandleFunc("/crawl/", srv.handleCrawlSession)
	mux.HandleFunc("/metrics", srv.handleMetrics)

	addr := ":8080"
	log.Printf("api listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// handleCrawl accepts POST requests to enqueue a crawl session seed.
//
// Method: POST
// Path:   /crawl?title=...
// Example:
//
//	curl -X POST "http://localhost:8080/crawl?title=Albert%20Einstein"
func (s *server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	seedTitle := strings.TrimSpace(r.URL.Query().Get("title"))
	if seedTitle == "" {
		http.Error(w, "missing title", http.StatusBadRequest)
		return
	}

	normalizedSeed := normalizeSeedTitle(seedTitle)
	id := newSessionID()
	createdAt := time.Now().UTC()
	status := models.CrawlStatus{
		SessionID: id,
		SeedTitle: normalizedSeed,
		Status:    "queued",
		CreatedAt: createdAt,
	}

	job := models.CrawlJob{
		SessionID: id,
		SeedTitle: normalizedSeed,
		Title:     normalizedSeed,
		Depth:     0,
		CreatedAt: createdAt,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.prod.WriteJob(ctx, job); err != nil {
		http.Error(w, "failed to enqueue job", http.StatusBadGateway)
		return
	}

	if err := s.store.SetStatus(ctx, status); err != nil {
		http.Error(w, "failed to persist status", http.StatusBadGateway)
		return
	}

	writeJSON(w, status, http.StatusAccepted)
}

// handleCrawlSession routes /crawl/{sessionID} and /crawl/{sessionID}/graph.
func (s *server) handleCrawlSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/crawl/"), "/")
	if strings.HasSuffix(rest, "/graph") {
		s.handleCrawlGraph(w, r, strings.TrimSuffix(rest, "/graph"))
		return
	}
	s.handleCrawlStatus(w, r, rest)
}

// handleCrawlStatus returns status for a previously created crawl session.
//
// Method: GET
// Path:   /crawl/{sessionID}
func (s *server) handleCrawlStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	status, ok, err := s.store.GetStatus(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "failed to load status", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, status, http.StatusOK)
}

// handleCrawlGraph returns the nodes and edges collected for a crawl session.
//
// Method: GET
// Path:   /crawl/{sessionID}/graph
// Example:
//
//	curl "http://localhost:8080/crawl/20260119120000/graph"
func (s *server) handleCrawlGraph(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID = strings.Trim(sessionID, "/")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	g, err := s.sessionGraph(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "failed to load graph", http.StatusBadGateway)
		return
	}

	writeJSON(w, g, http.StatusOK)
}

// handleMetrics exposes a minimal Prometheus-compatible endpoint.
//
// Method: GET
// Path:   /metrics
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("wandering_api_up 1\n"))
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func newSessionID() string {
	return strings.ReplaceAll(time.Now().UTC().Format("20060102150405.000000000"), ".", "")
}

// normalizeSeedTitle converts a URL-form title (underscores) to the canonical
// spaced form the MediaWiki API uses.
func normalizeSeedTitle(seed string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(seed, "_", " ")), " ")
}
