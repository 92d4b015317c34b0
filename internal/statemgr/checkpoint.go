package statemgr

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	checkpointFileName = ".checkpoint"
	checkpointVersion  = 0
)

// checkpointFile persists the last restored changelog offset of each
// persistent store, so restoration can resume after a restart.
//
// Format (text):
//
//	0                  version
//	2                  number of entries
//	counts 12345       <store> <offset>
//	sessions 678
type checkpointFile struct {
	path string
}

func newCheckpointFile(taskDir string) *checkpointFile {
	return &checkpointFile{path: filepath.Join(taskDir, checkpointFileName)}
}

// read returns an empty map if no checkpoint exists.
func (c *checkpointFile) read() (map[string]int64, error) {
	file, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]int64), nil
		}
		return nil, fmt.Errorf("open checkpoint file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	next := func(what string) (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("read checkpoint file: %w", err)
			}
			return "", fmt.Errorf("line %d: missing %s", lineNum+1, what)
		}
		lineNum++
		return strings.TrimSpace(scanner.Text()), nil
	}

	line, err := next("version")
	if err != nil {
		return nil, err
	}
	version, err := strconv.Atoi(line)
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid version: %w", lineNum, err)
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("unknown checkpoint version: %d (expected %d)", version, checkpointVersion)
	}

	line, err = next("entry count")
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(line)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("line %d: invalid entry count %q", lineNum, line)
	}

	offsets := make(map[string]int64, count)
	for range count {
		line, err := next("entry")
		if err != nil {
			return nil, err
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 fields (store offset), got %d: %s", lineNum, len(parts), line)
		}
		offset, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("line %d: invalid offset %q", lineNum, parts[1])
		}
		offsets[parts[0]] = offset
	}
	return offsets, nil
}

// write replaces the checkpoint atomically (temp file, fsync, rename). An
// empty map deletes it.
func (c *checkpointFile) write(offsets map[string]int64) error {
	if len(offsets) == 0 {
		return c.delete()
	}

	tmpPath := c.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "%d\n%d\n", checkpointVersion, len(offsets))
	for _, store := range slices.Sorted(maps.Keys(offsets)) {
		fmt.Fprintf(w, "%s %d\n", store, offsets[store])
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func (c *checkpointFile) delete() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
