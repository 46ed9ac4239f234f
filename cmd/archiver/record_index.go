package main

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

// recordIndex tracks article titles in memory and persists them one per line,
// so a later batch can pick up where the previous one stopped. Used for both
// archived titles and failed titles.
type recordIndex struct {
	path    string
	file    *os.File
	records map[string]struct{}
}

// openRecordIndex loads (or creates) the index file in batchFolder. When a
// previous batch folder holds the same file, its contents seed the new index.
func openRecordIndex(batchFolder, previousBatchFolder, fileName string) (*recordIndex, error) {
	path := filepath.Join(batchFolder, fileName)

	if previousBatchFolder != "" {
		source := filepath.Join(previousBatchFolder, fileName)
		if err := copyFileIfExists(source, path); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	records := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		records[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, err
	}

	return &recordIndex{
		path:    path,
		file:    file,
		records: records,
	}, nil
}

func copyFileIfExists(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (ri *recordIndex) has(record string) bool {
	_, ok := ri.records[record]
	return ok
}

// add records the title in memory and appends it to the index file.
// Adding an already-known record is a no-op.
func (ri *recordIndex) add(record string) error {
	if record == "" || ri.has(record) {
		return nil
	}
	if _, err := ri.file.WriteString(record + "\n"); err != nil {
		return err
	}
	ri.records[record] = struct{}{}
	return nil
}

func (ri *recordIndex) len() int {
	return len(ri.records)
}

func (ri *recordIndex) close() error {
	return ri.file.Close()
}
