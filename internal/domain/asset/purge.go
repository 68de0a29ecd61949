package asset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"commerce/internal/logger"
)

const purgeBatchSize = 100

// Purger hard-deletes assets that stayed soft-deleted longer than the retention.
type Purger struct {
	svc       *Service
	retention time.Duration
	timeout   time.Duration
	batchSize int
	cron      *cron.Cron
	log       *logger.Log

	mu      sync.Mutex
	running bool
}

func NewPurger(svc *Service, retention time.Duration, log *logger.Log) *Purger {
	if log == nil {
		log = logger.Get()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Purger{
		svc:       svc,
		retention: retention,
		timeout:   10 * time.Minute,
		batchSize: purgeBatchSize,
		cron:      cron.New(cron.WithParser(parser)),
		log:       log.WithEntryName("AssetPurger"),
	}
}

// Start schedules RunOnce on spec (cron syntax or descriptors like "@daily").
func (p *Purger) Start(spec string) error {
	if _, err := p.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if _, err := p.RunOnce(ctx); err != nil {
			p.log.WithErr(err).Warn("scheduled asset purge finished with errors")
		}
	}); err != nil {
		return fmt.Errorf("schedule asset purge %q: %w", spec, err)
	}
	p.cron.Start()
	p.log.WithField("schedule", spec).WithField("retention", p.retention.String()).Info("asset purge scheduled")
	return nil
}

// Stop waits for a running purge to finish.
func (p *Purger) Stop() {
	<-p.cron.Stop().Done()
}

// RunOnce purges in batches until nothing older than the retention is left.
// Overlapping runs are skipped.
func (p *Purger) RunOnce(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return 0, nil
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	cutoff := time.Now().Add(-p.retention)
	total := 0
	for {
		n, err := p.svc.PurgeSoftDeleted(ctx, cutoff, p.batchSize)
		total += n
		if err != nil {
			p.log.WithField("purged", total).Info("asset purge stopped")
			return total, err
		}
		if n < p.batchSize {
			break
		}
	}
	p.log.WithField("purged", total).Info("asset purge done")
	return total, nil
}
