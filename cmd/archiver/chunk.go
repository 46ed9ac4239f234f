package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// chunk is a single JSONL results file inside a batch folder. Chunks are
// capped at maxLines so one long crawl can't grow an unbounded file.
type chunk struct {
	batchNumber int
	chunkNumber int
	path        string
	file        *os.File
	lines       int
	maxLines    int
}

func newChunk(batchFolder string, batchNumber, chunkNumber, maxLines int) (*chunk, error) {
	name := fmt.Sprintf("batch_%d_results_%d.jsonl", batchNumber, chunkNumber)
	path := filepath.Join(batchFolder, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &chunk{
		batchNumber: batchNumber,
		chunkNumber: chunkNumber,
		path:        path,
		file:        file,
		maxLines:    maxLines,
	}, nil
}

// writeLine appends one JSON line. Returns false without writing when the
// chunk is already full; the caller rotates to a new chunk.
func (c *chunk) writeLine(line []byte) (bool, error) {
	if c.full() {
		return false, nil
	}
	if _, err := c.file.Write(append(line, '\n')); err != nil {
		return false, err
	}
	c.lines++
	return true, nil
}

func (c *chunk) full() bool {
	return c.maxLines > 0 && c.lines >= c.maxLines
}

func (c *chunk) close() error {
	return c.file.Close()
}
