// Package batcher buffers unlock audit records and delivers them to the
// audit endpoint in batches.
package batcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"checkin-lock/internal/config"
	"checkin-lock/internal/model"

	"go.uber.org/zap"
)

const maxAttempts = 3

// Batcher defines the interface for adding records and controlling lifecycle.
type Batcher interface {
	Add(record model.UnlockRecord)
	Start()
	Stop()
}

// batcher holds buffered audit records and manages periodic flushing.
type batcher struct {
	log        *zap.Logger
	cfg        *config.Config
	client     *http.Client
	retryDelay time.Duration
	records    []model.UnlockRecord
	mu         sync.Mutex
	ticker     *time.Ticker
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

// New initializes a new Batcher instance.
func New(cfg *config.Config, logger *zap.Logger) Batcher {
	return &batcher{
		log:        logger,
		cfg:        cfg,
		client:     &http.Client{Timeout: 5 * time.Second},
		retryDelay: 2 * time.Second,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		ticker:     time.NewTicker(cfg.BatchInterval),
	}
}

// Add appends a record to the buffer. It never waits on the network.
func (b *batcher) Add(record model.UnlockRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, record)
	if len(b.records) >= b.cfg.BatchSize {
		go b.flush()
	}
}

// Start runs the periodic flush ticker until Stop.
func (b *batcher) Start() {
	defer close(b.done)
	for {
		select {
		case <-b.ticker.C:
			b.flush()
		case <-b.quit:
			b.flush()
			b.ticker.Stop()
			return
		}
	}
}

// Stop signals the batcher to flush and waits for Start to return.
func (b *batcher) Stop() {
	b.stopOnce.Do(func() {
		close(b.quit)
		<-b.done
	})
}

func (b *batcher) flush() {
	b.mu.Lock()
	if len(b.records) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.records
	b.records = nil
	b.mu.Unlock()

	payload, err := json.Marshal(batch)
	if err != nil {
		b.log.Error("failed to marshal audit batch", zap.Error(err))
		return
	}

	start := time.Now()
	var status int
	for i := 1; i <= maxAttempts; i++ {
		status, err = b.post(payload)
		if err == nil {
			break
		}
		b.log.Warn("audit POST failed", zap.Int("attempt", i), zap.Error(err))
		if i < maxAttempts {
			time.Sleep(b.retryDelay)
		}
	}

	duration := time.Since(start)
	if err != nil {
		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.ID
		}
		b.log.Error("audit batch lost after retries",
			zap.Int("size", len(batch)),
			zap.Strings("record_ids", ids),
			zap.Error(err))
		return
	}

	b.log.Info("audit batch sent",
		zap.Int("size", len(batch)),
		zap.Int("status", status),
		zap.Duration("duration", duration))
}

func (b *batcher) post(payload []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, b.cfg.AuditEndpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
