package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/okian/stark/internal/adapters/http/auth"
	"github.com/okian/stark/internal/adapters/repository"
	"github.com/okian/stark/internal/adapters/repository/memstore"
	"github.com/okian/stark/internal/adapters/repository/sqlstore"
	"github.com/okian/stark/internal/config"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/seed"
	"github.com/okian/stark/pkg/logger"
)

// Default configuration constants.
const (
	defaultParticipants = 20
	defaultJudges       = 5
	defaultTokenTTL     = 24 * time.Hour
	defaultSeedTimeout  = 5 * time.Minute
)

const usage = `Stark seed tool
===============

Writes a YAML fixture, or a generated event, into the configured store and
verifies the resulting leaderboards.

Usage:
  go run ./cmd/seed -confirm [options]

Examples:
  # Load the demo fixture into a local sqlite file
  go run ./cmd/seed -confirm -fixture internal/seed/testdata/demo.yaml -dsn "file:stark.db?_pragma=foreign_keys(1)"

  # Generate 50 teams and 6 judges, save the fixture and print bearer tokens
  go run ./cmd/seed -confirm -generate -participants 50 -judges 6 -output seed.yaml -secret "$STARK_JWT_SECRET"

Options:
`

func main() {
	var (
		fixture      = flag.String("fixture", "", "YAML fixture to load")
		generate     = flag.Bool("generate", false, "Generate a random event instead of loading a fixture")
		participants = flag.Int("participants", defaultParticipants, "Generated participants")
		judges       = flag.Int("judges", defaultJudges, "Generated judges")
		skipRate     = flag.Int("skip", 0, "Chance in tenths that a judge leaves a participant unscored")
		title        = flag.String("title", "", "Generated event title")
		driver       = flag.String("driver", config.DriverSQLite, "Store driver: sqlite, postgres or memory")
		dsn          = flag.String("dsn", "", "Store DSN (default: STARK_DB_DSN or the service default)")
		output       = flag.String("output", "", "Write the applied fixture to this file")
		secret       = flag.String("secret", "", "Sign and print a bearer token per sponsor and judge with this secret")
		tokenTTL     = flag.Duration("token-ttl", defaultTokenTTL, "Lifetime of printed tokens")
		confirm      = flag.Bool("confirm", false, "Confirm writing to the target store")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Usage = func() {
		os.Stderr.WriteString(usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Get()

	if *fixture == "" && !*generate {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSeedTimeout)
	defer cancel()

	if *dsn == "" {
		*dsn = os.Getenv("STARK_DB_DSN")
	}
	if *dsn == "" {
		*dsn = config.New(ctx).DBDSN
	}

	store, err := openStore(ctx, *driver, *dsn)
	if err != nil {
		log.Error(ctx, "failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	cfg := seed.Config{
		FixturePath: *fixture,
		Generate: seed.Params{
			Title:        *title,
			Participants: *participants,
			Judges:       *judges,
			SkipRate:     *skipRate,
		},
		OutputFile: *output,
		Confirm:    *confirm,
	}
	if *generate {
		cfg.FixturePath = ""
	}

	stats, err := seed.Run(ctx, store, cfg)
	if err != nil {
		log.Error(ctx, "seeding failed", logger.Error(err))
		os.Exit(1)
	}

	for _, rep := range stats.Reports {
		for _, r := range rep.Top {
			fmt.Printf("%s  #%d %-30s %.2f\n", rep.EventID, r.Rank, r.Name, r.Average)
		}
	}
	if *secret != "" {
		if err := printTokens(stats.Fixture, *secret, *tokenTTL); err != nil {
			log.Error(ctx, "failed to sign tokens", logger.Error(err))
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, driver, dsn string) (repository.Store, error) {
	if driver == config.DriverMemory {
		return memstore.New(), nil
	}
	s, err := sqlstore.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := s.CreateSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// printTokens signs a token for every profile that can use the API.
func printTokens(f *seed.Fixture, secret string, ttl time.Duration) error {
	for _, p := range f.Profiles {
		switch {
		case p.Role == model.RoleITCompany, p.Role == model.RoleAdmin, p.Role == model.RoleJudge,
			p.Role == model.RoleIndividual && p.SubRole == model.SubRoleJury:
		default:
			continue
		}
		tok, err := auth.Sign(secret, p.ID, ttl)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %-24s %s\n", p.Role, p.FullName, tok)
	}
	return nil
}
