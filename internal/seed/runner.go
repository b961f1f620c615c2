package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/stark/internal/adapters/repository"
	"github.com/okian/stark/internal/domain/ranking"
	"github.com/okian/stark/pkg/logger"
)

// ErrNotConfirmed is returned when a run was not explicitly confirmed.
var ErrNotConfirmed = errors.New("seeding writes to the target store; pass -confirm to proceed")

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Config holds one seeding run.
type Config struct {
	FixturePath string
	Generate    Params
	OutputFile  string
	Threshold   float64
	Confirm     bool
}

// Stats holds run statistics.
type Stats struct {
	Summary
	Fixture   *Fixture
	Reports   []Report
	StartTime time.Time
	Duration  time.Duration
}

// Run loads or generates a fixture, writes it to store and verifies every
// event's board.
func Run(ctx context.Context, store repository.Store, cfg Config) (*Stats, error) {
	if !cfg.Confirm {
		return nil, ErrNotConfirmed
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("seed")

	// Step 1: check the store
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store health check failed: %w", err)
	}

	// Step 2: obtain the fixture
	var (
		f   *Fixture
		err error
	)
	if cfg.FixturePath != "" {
		f, err = LoadFile(cfg.FixturePath)
	} else {
		f, err = Generate(ctx, cfg.Generate)
	}
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}

	// Step 3: write it
	summary, err := Apply(ctx, store, f)
	if err != nil {
		return nil, fmt.Errorf("apply fixture: %w", err)
	}
	stats.Summary = summary
	stats.Fixture = f
	log.Info(ctx, "fixture applied",
		logger.Int("profiles", summary.Profiles),
		logger.Int("events", summary.Events),
		logger.Int("applications", summary.Applications),
		logger.Int("assignments", summary.Assignments),
		logger.Int("evaluations", summary.Evaluations),
	)

	// Step 4: verify the boards
	var opts []ranking.Option
	if cfg.Threshold > 0 {
		opts = append(opts, ranking.WithProvisionalThreshold(cfg.Threshold))
	}
	agg := ranking.New(store, opts...)
	for _, ev := range f.Events {
		rep, err := Verify(ctx, agg, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("result verification failed: %w", err)
		}
		stats.Reports = append(stats.Reports, rep)
	}

	// Step 5: keep a copy of generated data
	if cfg.OutputFile != "" {
		if err := saveFixture(cfg.OutputFile, f); err != nil {
			log.Warn(ctx, "failed to save fixture", logger.Error(err))
		} else {
			log.Info(ctx, "fixture saved", logger.String("filename", cfg.OutputFile))
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "seeding completed", logger.Duration("duration", stats.Duration))
	return stats, nil
}

func saveFixture(filename string, f *Fixture) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal fixture: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}
