// Package wal write-ahead logs raw estimate request bodies before parsing,
// so a crash mid-request never loses a submission.
package wal

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// InboxWAL appends incoming request bodies to a daily log file.
type InboxWAL struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Entry is a single logged request body.
type Entry struct {
	Timestamp time.Time
	Body      []byte
}

// NewInboxWAL creates or opens the WAL file for today.
func NewInboxWAL(dirPath string) (*InboxWAL, error) {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	walPath := filepath.Join(dirPath, fmt.Sprintf("inbox-%s.wal", time.Now().Format("20060102")))

	file, err := os.OpenFile(walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	return &InboxWAL{file: file, path: walPath}, nil
}

// Append durably writes a request body with fsync. Bodies are base64
// encoded so arbitrary JSON (including newlines) round-trips through the
// line-oriented format.
func (w *InboxWAL) Append(body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line := fmt.Sprintf("%s|%s\n",
		time.Now().Format(time.RFC3339Nano),
		base64.StdEncoding.EncodeToString(body))

	if _, err := w.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write WAL entry: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}

	return nil
}

// Path returns the active WAL file path.
func (w *InboxWAL) Path() string {
	return w.path
}

// Close flushes and closes the WAL.
func (w *InboxWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

// Replay reads all entries from a WAL file, skipping malformed lines.
func Replay(walPath string) ([]Entry, error) {
	file, err := os.Open(walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		ts, encoded, ok := strings.Cut(scanner.Text(), "|")
		if !ok {
			continue
		}

		timestamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			continue
		}
		body, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}

		entries = append(entries, Entry{Timestamp: timestamp, Body: body})
	}

	return entries, scanner.Err()
}
