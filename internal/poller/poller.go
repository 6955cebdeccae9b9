package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jgoulah/smarthubscraper/internal/smarthub"
	"github.com/jgoulah/smarthubscraper/pkg/models"
)

// Fetcher fetches one usage reading
type Fetcher interface {
	Fetch(ctx context.Context) (smarthub.FetchResult, error)
}

// Recorder stores poll records
type Recorder interface {
	InsertPoll(rec *models.PollRecord) error
}

// Publisher sends readings to the home-automation platform
type Publisher interface {
	Publish(ctx context.Context, reading models.UsageReading, at time.Time) error
}

// Poller runs poll cycles: fetch, record, publish
type Poller struct {
	fetcher   Fetcher
	recorder  Recorder  // optional
	publisher Publisher // optional
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Poller. recorder and publisher may be nil.
func New(fetcher Fetcher, recorder Recorder, publisher Publisher, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:   fetcher,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Cycle runs one poll cycle. A reading that could not be obtained is not an
// error; a failed login, a failed record, or a failed publish is.
func (p *Poller) Cycle(ctx context.Context) (*models.PollRecord, error) {
	rec := &models.PollRecord{
		CycleID:  uuid.NewString(),
		PolledAt: p.now(),
	}
	logger := p.logger.With(zap.String("cycle_id", rec.CycleID))

	res, fetchErr := p.fetcher.Fetch(ctx)
	if fetchErr != nil {
		rec.Outcome = models.OutcomeAuthError
		rec.Detail = fetchErr.Error()
		var authErr *smarthub.AuthenticationError
		if errors.As(fetchErr, &authErr) {
			rec.StatusCode = authErr.StatusCode
		}
	} else {
		rec.Outcome = res.Outcome.String()
		rec.StatusCode = res.StatusCode
		if res.Err != nil {
			rec.Detail = res.Err.Error()
		}
		if res.Reading != nil {
			usage := res.Reading.Usage
			rec.Usage = &usage
		}
	}

	if p.recorder != nil {
		if err := p.recorder.InsertPoll(rec); err != nil {
			logger.Warn("recording poll cycle", zap.Error(err))
			if fetchErr == nil {
				fetchErr = fmt.Errorf("recording poll cycle: %w", err)
			}
		}
	}

	if fetchErr != nil {
		return rec, fetchErr
	}

	if res.Reading == nil {
		logger.Info("no usage data this cycle", zap.String("outcome", rec.Outcome))
		return rec, nil
	}

	logger.Info("usage reading", zap.Float64("usage", res.Reading.Usage))
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, *res.Reading, rec.PolledAt); err != nil {
			return rec, fmt.Errorf("publishing reading: %w", err)
		}
	}
	return rec, nil
}

// Run polls immediately and then every interval until ctx is done. Cycle
// errors are logged and polling continues.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Cycle(ctx); err != nil {
			p.logger.Error("poll cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
