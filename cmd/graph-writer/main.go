package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/segmentio/kafka-go"

	"wandering-wikipedian/common"
	"wandering-wikipedian/internal/graph"
	"wandering-wikipedian/internal/models"
	"wandering-wikipedian/internal/stream"
)

type graphWriter struct {
	driver graph.DriverSessioner
}

var (
	// Counters for graph-writer throughput and failures exposed on /metrics.
	// results/edges received: messages fetched from Kafka; failed: write errors on writing to Neo4j.
	graphWriterResultsReceived uint64
	graphWriterResultsFailed   uint64
	graphWriterEdgesReceived   uint64
	graphWriterEdgesFailed     uint64
	graphWriterResultsWritten  uint64
	graphWriterEdgesWritten    uint64
)

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
	resultsTopic := common.GetEnv("KAFKA_RESULTS_TOPIC", "wandering.crawl.results")
	edgesTopic := common.GetEnv("KAFKA_EDGES_TOPIC", "wandering.graph.edges")
	resultsGroup := common.GetEnv("KAFKA_RESULTS_GROUP", "wandering-graph-results")
	edgesGroup := common.GetEnv("KAFKA_EDGES_GROUP", "wandering-graph-edges")
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9091")

	neo4jURI := common.GetEnv("NEO4J_URI", "neo4j://localhost:7687")
	neo4jUser := common.GetEnv("NEO4J_USER", "neo4j")
	neo4jPassword := common.GetEnv("NEO4J_PASSWORD", "neo4j")

	driver, err := neo4j.NewDriverWithContext(neo4jURI, neo4j.BasicAuth(neo4jUser, neo4jPassword, ""))
	if err != nil {
		log.Fatalf("neo4j driver error: %v", err)
	}
	defer func() {
		if err := driver.Close(context.Background()); err != nil {
			log.Printf("neo4j close error: %v", err)
		}
	}()

	writer := &graphWriter{driver: &neo4jDriver{driver: driver}}

	resultsReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   resultsTopic,
		GroupID: resultsGroup,
	})
	defer func() {
		if err := resultsReader.Close(); err != nil {
			log.Printf("results reader close error: %v", err)
		}
	}()

	edgesReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   edgesTopic,
		GroupID: edgesGroup,
	})
	defer func() {
		if err := edgesReader.Close(); err != nil {
			log.Printf("edges reader close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	go consumeResults(ctx, resultsReader, writer)
	go consumeEdges(ctx, edgesReader, writer)

	<-ctx.Done()
}

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf(
		"wandering_graph_writer_up 1\n"+
			"wandering_graph_writer_results_received_total %d\n"+
			"wandering_graph_writer_results_failed_total %d\n"+
			"wandering_graph_writer_edges_received_total %d\n"+
			"wandering_graph_writer_edges_failed_total %d\n"+
			"wandering_graph_writer_results_written_total %d\n"+
			"wandering_graph_writer_edges_written_total %d\n",
		atomic.LoadUint64(&graphWriterResultsReceived),
		atomic.LoadUint64(&graphWriterResultsFailed),
		atomic.LoadUint64(&graphWriterEdgesReceived),
		atomic.LoadUint64(&graphWriterEdgesFailed),
		atomic.LoadUint64(&graphWriterResultsWritten),
		atomic.LoadUint64(&graphWriterEdgesWritten),
	)
	_, _ = w.Write([]byte(body))
}

func consumeResults(ctx context.Context, reader stream.MessageReader, writer *graphWriter) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("results fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		atomic.AddUint64(&graphWriterResultsReceived, 1)
		if err := writer.writeResult(ctx, msg.Value); err != nil {
			atomic.AddUint64(&graphWriterResultsFailed, 1)
			log.Printf("results write error: %v", err)
			continue
		}
		atomic.AddUint64(&graphWriterResultsWritten, 1)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("results commit error: %v", err)
		}
	}
}

func consumeEdges(ctx context.Context, reader stream.MessageReader, writer *graphWriter) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("edges fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		atomic.AddUint64(&graphWriterEdgesReceived, 1)
		if err := writer.writeEdge(ctx, msg.Value); err != nil {
			atomic.AddUint64(&graphWriterEdgesFailed, 1)
			log.Printf("edges write error: %v", err)
			continue
		}
		atomic.AddUint64(&graphWriterEdgesWritten, 1)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("edges commit error: %v", err)
		}
	}
}

func (w *graphWriter) writeResult(ctx context.Context, payload []byte) error {
	var result models.CrawlResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return err
	}
	if result.Article.Title == "" {
		return nil
	}

	query, params := buildArticleQuery(result.SessionID, result.Article)
	return w.runWrite(ctx, query, params)
}

func (w *graphWriter) writeEdge(ctx context.Context, payload []byte) error {
	var edge models.Edge
	if err := json.Unmarshal(payload, &edge); err != nil {
		return err
	}
	if edge.From == "" || edge.To == "" {
		return nil
	}

	query, params := buildEdgeQuery(edge)
	return w.runWrite(ctx, query, params)
}

func (w *graphWriter) runWrite(ctx context.Context, query string, params map[string]any) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := session.Close(ctx); err != nil {
			log.Printf("neo4j session close error: %v", err)
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

// buildArticleQuery MERGEs the article node keyed by title. Properties only
// overwrite when the incoming value is present, so a later bare edge MERGE
// can't erase what a crawl result already recorded.
func buildArticleQuery(sessionID string, article models.Article) (string, map[string]any) {
	label := nodeLabel(article.Title)
	query := fmt.Sprintf(
		"MERGE (a:%s {title: $title}) "+
			"SET a.session_id = $session_id, "+
			"a.exists = $exists, "+
			"a.type = coalesce($type, a.type), "+
			"a.num_links = coalesce($num_links, a.num_links)",
		label,
	)
	var articleType any
	if article.Type != "" {
		articleType = string(article.Type)
	}
	var numLinks any
	if article.Exists {
		numLinks = article.NumLinks
	}
	params := map[string]any{
		"title":      article.Title,
		"exists":     article.Exists,
		"type":       articleType,
		"num_links":  numLinks,
		"session_id": sessionID,
	}
	return query, params
}

func buildEdgeQuery(edge models.Edge) (string, map[string]any) {
	fromLabel := nodeLabel(edge.From)
	toLabel := nodeLabel(edge.To)
	rel := relationType(edge.Relation)

	query := fmt.Sprintf(
		"MERGE (from:%s {title: $fromTitle}) "+
			"MERGE (to:%s {title: $toTitle}) "+
			"MERGE (from)-[r:%s {session_id: $session_id}]->(to)",
		fromLabel,
		toLabel,
		rel,
	)

	params := map[string]any{
		"fromTitle":  edge.From,
		"toTitle":    edge.To,
		"session_id": edge.SessionID,
	}
	return query, params
}

// nodeLabel maps a title's namespace class to its Neo4j label.
func nodeLabel(title string) string {
	switch models.ClassifyTitle(title) {
	case models.ArticleTypeCategory:
		return "Category"
	case models.ArticleTypeTemplate:
		return "Template"
	case models.ArticleTypePortal:
		return "Portal"
	case models.ArticleTypeWikipedia:
		return "Project"
	case models.ArticleTypeTalk:
		return "Talk"
	default:
		return "Article"
	}
}

func relationType(input string) string {
	switch input {
	case "links_to", "":
		return "LINKS_TO"
	default:
		return strings.ToUpper(strings.ReplaceAll(input, "-", "_"))
	}
}
