package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"wandering-wikipedian/common"
	"wandering-wikipedian/internal/models"
	"wandering-wikipedian/internal/stream"
)

// archiver drains the results topic into JSONL batch chunks on disk and keeps
// visited/failed title indexes so a restarted run skips already-archived pages.
type archiver struct {
	batch   *batch
	visited *recordIndex
	failed  *recordIndex
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	resultsTopic := common.GetEnv("KAFKA_RESULTS_TOPIC", "wandering.crawl.results")
	dlqTopic := common.GetEnv("KAFKA_DLQ_TOPIC", "wandering.crawl.dlq")
	resultsGroup := common.GetEnv("KAFKA_ARCHIVER_GROUP", "wandering-archiver-results")
	dlqGroup := common.GetEnv("KAFKA_ARCHIVER_DLQ_GROUP", "wandering-archiver-dlq")
	dataDir := common.GetEnv("DATA_DIR", "data")
	chunkMaxLines := common.ParseInt(common.GetEnv("CHUNK_MAX_LINES", ""), defaultChunkMaxLines)

	b, previousFolder, err := openBatch(dataDir, chunkMaxLines)
	if err != nil {
		log.Fatalf("batch setup error: %v", err)
	}
	defer func() {
		if err := b.close(); err != nil {
			log.Printf("batch close error: %v", err)
		}
	}()

	visited, err := openRecordIndex(b.folder, previousFolder, "visited_articles.txt")
	if err != nil {
		log.Fatalf("visited index error: %v", err)
	}
	defer func() {
		if err := visited.close(); err != nil {
			log.Printf("visited index close error: %v", err)
		}
	}()

	failed, err := openRecordIndex(b.folder, previousFolder, "failed_articles.txt")
	if err != nil {
		log.Fatalf("failed index error: %v", err)
	}
	defer func() {
		if err := failed.close(); err != nil {
			log.Printf("failed index close error: %v", err)
		}
	}()

	arch := &archiver{batch: b, visited: visited, failed: failed}
	log.Printf("archiver batch=%d visited=%d failed=%d", b.number, visited.len(), failed.len())

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

	dlqReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   dlqTopic,
		GroupID: dlqGroup,
	})
	defer func() {
		if err := dlqReader.Close(); err != nil {
			log.Printf("dlq reader close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go consumeResults(ctx, resultsReader, arch)
	go consumeFailures(ctx, dlqReader, arch)

	<-ctx.Done()
}

func consumeResults(ctx context.Context, reader stream.MessageReader, arch *archiver) {
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

		if err := arch.archiveResult(msg.Value); err != nil {
			log.Printf("archive error: %v", err)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("results commit error: %v", err)
		}
	}
}

func consumeFailures(ctx context.Context, reader stream.MessageReader, arch *archiver) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("dlq fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := arch.recordFailure(msg.Value); err != nil {
			log.Printf("failure record error: %v", err)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("dlq commit error: %v", err)
		}
	}
}

// archiveResult writes the raw result line to the active chunk and marks the
// title as visited. Titles already in the index are skipped, so replayed
// messages don't duplicate lines.
func (a *archiver) archiveResult(payload []byte) error {
	var result models.CrawlResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return err
	}
	if result.Title == "" {
		return nil
	}
	if a.visited.has(result.Title) {
		return nil
	}
	if err := a.batch.appendResult(payload); err != nil {
		return err
	}
	return a.visited.add(result.Title)
}

// recordFailure adds the failed title to the failed-articles index.
func (a *archiver) recordFailure(payload []byte) error {
	var failure models.CrawlFailure
	if err := json.Unmarshal(payload, &failure); err != nil {
		return err
	}
	return a.failed.add(failure.Title)
}
