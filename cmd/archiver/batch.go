package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

const defaultChunkMaxLines = 100_000

// batchFolderPattern matches staging folder names like 20260827_batch_3.
var batchFolderPattern = regexp.MustCompile(`^(\d{8})_batch_(\d+)$`)

// batch owns a dated folder under <data>/staging and the active results
// chunk inside it. The batch number continues from the most recent batch
// found in the staging folder.
type batch struct {
	number        int
	folder        string
	active        *chunk
	chunkMaxLines int
}

// openBatch creates the next batch folder and its first chunk. Returns the
// batch and the previous batch folder path ("" when this is the first batch),
// which record indexes use to carry state across runs.
func openBatch(dataDir string, chunkMaxLines int) (*batch, string, error) {
	if chunkMaxLines <= 0 {
		chunkMaxLines = defaultChunkMaxLines
	}
	staging := filepath.Join(dataDir, "staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, "", err
	}

	previousFolder, previousNumber, err := recentBatch(staging)
	if err != nil {
		return nil, "", err
	}

	number := previousNumber + 1
	folderName := fmt.Sprintf("%s_batch_%d", time.Now().Format("20060102"), number)
	folder := filepath.Join(staging, folderName)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, "", err
	}

	active, err := newChunk(folder, number, 1, chunkMaxLines)
	if err != nil {
		return nil, "", err
	}
	log.Printf("batch %d opened at %s (previous=%q)", number, folder, previousFolder)

	return &batch{
		number:        number,
		folder:        folder,
		active:        active,
		chunkMaxLines: chunkMaxLines,
	}, previousFolder, nil
}

// recentBatch scans the staging folder for the highest-numbered batch folder.
// Returns "" and 0 when none exists yet.
func recentBatch(staging string) (string, int, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", 0, err
	}

	var bestFolder string
	var bestNumber int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		match := batchFolderPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		number, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		if number > bestNumber {
			bestNumber = number
			bestFolder = filepath.Join(staging, entry.Name())
		}
	}
	return bestFolder, bestNumber, nil
}

// appendResult writes one result line, rotating to the next chunk when the
// active one is full.
func (b *batch) appendResult(line []byte) error {
	wrote, err := b.active.writeLine(line)
	if err != nil {
		return err
	}
	if wrote {
		return nil
	}

	if err := b.active.close(); err != nil {
		log.Printf("chunk close error: %v", err)
	}
	next, err := newChunk(b.folder, b.number, b.active.chunkNumber+1, b.chunkMaxLines)
	if err != nil {
		return err
	}
	log.Printf("rotated to chunk %d of batch %d", next.chunkNumber, b.number)
	b.active = next

	_, err = b.active.writeLine(line)
	return err
}

func (b *batch) close() error {
	return b.active.close()
}
