package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"wandering-wikipedian/internal/models"
)

func newTestArchiver(t *testing.T, dataDir string, chunkMaxLines int) *archiver {
	t.Helper()

	b, previousFolder, err := openBatch(dataDir, chunkMaxLines)
	if err != nil {
		t.Fatalf("openBatch error: %v", err)
	}
	t.Cleanup(func() { b.close() })

	visited, err := openRecordIndex(b.folder, previousFolder, "visited_articles.txt")
	if err != nil {
		t.Fatalf("visited index error: %v", err)
	}
	t.Cleanup(func() { visited.close() })

	failed, err := openRecordIndex(b.folder, previousFolder, "failed_articles.txt")
	if err != nil {
		t.Fatalf("failed index error: %v", err)
	}
	t.Cleanup(func() { failed.close() })

	return &archiver{batch: b, visited: visited, failed: failed}
}

func resultPayload(t *testing.T, title string) []byte {
	t.Helper()
	payload, err := json.Marshal(models.CrawlResult{
		SessionID: "s1",
		Title:     title,
		Article:   models.Article{Title: title, Exists: true},
	})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return payload
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()
	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if scanner.Text() != "" {
			count++
		}
	}
	return count
}

func TestArchiveResultWritesLineAndMarksVisited(t *testing.T) {
	arch := newTestArchiver(t, t.TempDir(), 0)

	if err := arch.archiveResult(resultPayload(t, "Aarde")); err != nil {
		t.Fatalf("archiveResult error: %v", err)
	}

	if !arch.visited.has("Aarde") {
		t.Fatal("expected title in visited index")
	}
	if got := countLines(t, arch.batch.active.path); got != 1 {
		t.Fatalf("expected 1 line in chunk, got %d", got)
	}
}

func TestArchiveResultSkipsDuplicates(t *testing.T) {
	arch := newTestArchiver(t, t.TempDir(), 0)

	if err := arch.archiveResult(resultPayload(t, "Aarde")); err != nil {
		t.Fatalf("archiveResult error: %v", err)
	}
	if err := arch.archiveResult(resultPayload(t, "Aarde")); err != nil {
		t.Fatalf("archiveResult error: %v", err)
	}

	if got := countLines(t, arch.batch.active.path); got != 1 {
		t.Fatalf("expected 1 line after duplicate, got %d", got)
	}
}

func TestArchiveResultSkipsEmptyTitle(t *testing.T) {
	arch := newTestArchiver(t, t.TempDir(), 0)

	if err := arch.archiveResult(resultPayload(t, "")); err != nil {
		t.Fatalf("archiveResult error: %v", err)
	}
	if got := countLines(t, arch.batch.active.path); got != 0 {
		t.Fatalf("expected empty chunk, got %d lines", got)
	}
}

func TestArchiveResultInvalidPayload(t *testing.T) {
	arch := newTestArchiver(t, t.TempDir(), 0)
	if err := arch.archiveResult([]byte("{invalid")); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRecordFailure(t *testing.T) {
	arch := newTestArchiver(t, t.TempDir(), 0)

	payload, err := json.Marshal(models.CrawlFailure{SessionID: "s1", Title: "Maan", Error: "boom"})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if err := arch.recordFailure(payload); err != nil {
		t.Fatalf("recordFailure error: %v", err)
	}
	if !arch.failed.has("Maan") {
		t.Fatal("expected title in failed index")
	}
}

func TestChunkRotation(t *testing.T) {
	dir := t.TempDir()
	arch := newTestArchiver(t, dir, 2)

	for _, title := range []string{"Aarde", "Maan", "Zon"} {
		if err := arch.archiveResult(resultPayload(t, title)); err != nil {
			t.Fatalf("archiveResult error: %v", err)
		}
	}

	if arch.batch.active.chunkNumber != 2 {
		t.Fatalf("expected rotation to chunk 2, got %d", arch.batch.active.chunkNumber)
	}
	first := filepath.Join(arch.batch.folder, "batch_1_results_1.jsonl")
	if got := countLines(t, first); got != 2 {
		t.Fatalf("expected 2 lines in first chunk, got %d", got)
	}
	if got := countLines(t, arch.batch.active.path); got != 1 {
		t.Fatalf("expected 1 line in second chunk, got %d", got)
	}
}

func TestBatchNumberContinues(t *testing.T) {
	dir := t.TempDir()

	b1, previous, err := openBatch(dir, 0)
	if err != nil {
		t.Fatalf("openBatch error: %v", err)
	}
	if previous != "" || b1.number != 1 {
		t.Fatalf("expected first batch 1 with no previous, got %d %q", b1.number, previous)
	}
	if err := b1.close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	b2, previous, err := openBatch(dir, 0)
	if err != nil {
		t.Fatalf("openBatch error: %v", err)
	}
	defer b2.close()
	if b2.number != 2 {
		t.Fatalf("expected batch 2, got %d", b2.number)
	}
	if previous != b1.folder {
		t.Fatalf("expected previous folder %q, got %q", b1.folder, previous)
	}
}

func TestRecordIndexCarriesOverFromPreviousBatch(t *testing.T) {
	dir := t.TempDir()

	arch1 := newTestArchiver(t, dir, 0)
	if err := arch1.archiveResult(resultPayload(t, "Aarde")); err != nil {
		t.Fatalf("archiveResult error: %v", err)
	}
	arch1.batch.close()
	arch1.visited.close()
	arch1.failed.close()

	arch2 := newTestArchiver(t, dir, 0)
	if !arch2.visited.has("Aarde") {
		t.Fatal("expected visited index to carry over into the new batch")
	}

	// Carried-over titles must not be archived again.
	if err := arch2.archiveResult(resultPayload(t, "Aarde")); err != nil {
		t.Fatalf("archiveResult error: %v", err)
	}
	if got := countLines(t, arch2.batch.active.path); got != 0 {
		t.Fatalf("expected carried-over title to be skipped, got %d lines", got)
	}
}

func TestRecordIndexAddIdempotent(t *testing.T) {
	dir := t.TempDir()
	idx, err := openRecordIndex(dir, "", "visited_articles.txt")
	if err != nil {
		t.Fatalf("openRecordIndex error: %v", err)
	}
	defer idx.close()

	for i := 0; i < 3; i++ {
		if err := idx.add("Aarde"); err != nil {
			t.Fatalf("add error: %v", err)
		}
	}
	if err := idx.add(""); err != nil {
		t.Fatalf("add empty error: %v", err)
	}
	if idx.len() != 1 {
		t.Fatalf("expected 1 record, got %d", idx.len())
	}
	if got := countLines(t, filepath.Join(dir, "visited_articles.txt")); got != 1 {
		t.Fatalf("expected 1 line in index file, got %d", got)
	}
}

func TestBatchFolderPattern(t *testing.T) {
	if !batchFolderPattern.MatchString("20260827_batch_3") {
		t.Fatal("expected match")
	}
	for _, name := range []string{"notabatch", "20260827_batch_", "batch_3", "20260827_batch_3x"} {
		if batchFolderPattern.MatchString(name) {
			t.Fatalf("expected no match for %q", name)
		}
	}
}
