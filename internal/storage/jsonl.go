package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"agromart/internal/model"
)

// JsonlAudit appends observed contract events to a JSONL file. It is an
// optional export alongside the event store, for offline audit tooling.
type JsonlAudit struct {
	path string
	mu   sync.Mutex
}

func NewJsonlAudit(path string) *JsonlAudit {
	return &JsonlAudit{path: path}
}

// Append writes one event as a JSON line.
func (a *JsonlAudit) Append(event model.ContractEvent) error {
	dir := filepath.Dir(a.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush audit file: %w", err)
	}

	return nil
}
