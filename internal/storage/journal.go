package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Journal appends JSON lines to a rotating file without blocking the caller.
// It is an audit trail of finished sessions; the output directory stays the
// source of truth for what is done.
type Journal struct {
	path    string
	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *lumberjack.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewJournal opens (or creates) the journal file at path.
func NewJournal(path string, bufferSize, maxSizeMB int) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	j := &Journal{
		path:    path,
		writeCh: make(chan any, bufferSize),
		done:    make(chan struct{}),
		logger: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   false,
		},
	}
	j.wg.Add(1)
	go j.writeLoop()
	slog.Info("journal opened", "file", path)
	return j, nil
}

// Write queues a record for async writing.
func (j *Journal) Write(record any) error {
	select {
	case <-j.done:
		return fmt.Errorf("journal is closed")
	default:
	}
	select {
	case j.writeCh <- record:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record", "file", j.path)
		return fmt.Errorf("buffer full")
	}
}

// Close flushes queued records and closes the file. Safe to call twice.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		j.closeErr = j.logger.Close()
	})
	return j.closeErr
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
		case <-j.done:
			timeout := time.After(5 * time.Second)
			for {
				select {
				case record := <-j.writeCh:
					j.writeRecord(record)
				case <-timeout:
					slog.Warn("journal close timeout, some records may be lost", "file", j.path)
					return
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal marshal failed", "error", err)
		return
	}
	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err, "file", j.path)
	}
}
