// Package pipeline validates, deduplicates, and writes member records.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-members/config"
	"github.com/aluiziolira/go-scrape-members/models"
	"github.com/aluiziolira/go-scrape-members/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(members []*models.Member) error
	Close() error
	Validate() error
}

// Pipeline coordinates de-duplication, quality accounting, and output
// writing. Under-populated records are flagged and counted but still
// written; quality never filters the export.
type Pipeline struct {
	writer    OutputWriter
	memberCh  chan *models.Member
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	recordsMu sync.Mutex
	records   []*models.Member

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline feeding writer, sized from cfg.
func NewPipeline(writer OutputWriter, cfg *config.Config) (*Pipeline, error) {
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	return &Pipeline{
		writer:    writer,
		memberCh:  make(chan *models.Member, cfg.PipelineBufferSize),
		batchSize: cfg.BatchSize,
		seen:      seen,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}, nil
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues members for downstream processing.
func (p *Pipeline) Process(members ...*models.Member) error {
	if len(members) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, member := range members {
		if member == nil {
			continue
		}
		if err := p.enqueue(member); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.memberCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Records returns a snapshot of every record accepted so far, in write
// order.
func (p *Pipeline) Records() []*models.Member {
	p.recordsMu.Lock()
	defer p.recordsMu.Unlock()
	out := make([]*models.Member, len(p.records))
	copy(out, p.records)
	return out
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_members"].(int64)
				quality := metrics["quality_flags"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("quality_flags", len(quality)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Member, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for member := range p.memberCh {
		prepared := p.prepare(member)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(member *models.Member) *models.Member {
	if _, dup := p.seen.Get(member.URL); dup {
		p.metrics.addQuality("duplicate_url")
		return nil
	}
	p.seen.Add(member.URL, struct{}{})

	if err := parser.ValidateMember(member); err != nil {
		p.metrics.addQuality("low_quality")
	}

	p.recordsMu.Lock()
	p.records = append(p.records, member)
	p.recordsMu.Unlock()

	p.metrics.incrementProcessed()
	return member
}

func (p *Pipeline) enqueue(member *models.Member) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.memberCh <- member:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.memberCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	quality   map[string]int
}

func newMetrics() metrics {
	return metrics{
		quality: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addQuality(kind string) {
	m.mu.Lock()
	m.quality[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyQuality := make(map[string]int, len(m.quality))
	for k, v := range m.quality {
		copyQuality[k] = v
	}

	return map[string]interface{}{
		"processed_members": m.processed,
		"quality_flags":     copyQuality,
	}
}
