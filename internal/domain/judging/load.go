package judging

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/pkg/errs"
)

// Store is what loading and saving a sheet needs.
type Store interface {
	Saver
	ApplicationsByEvent(ctx context.Context, eventID string) ([]model.Application, error)
	EvaluationsByEvent(ctx context.Context, eventID, judgeID string) ([]model.Evaluation, error)
	Profiles(ctx context.Context, ids []string) ([]model.Profile, error)
}

// Load reads the event's applications and the judge's own evaluations
// concurrently, resolves participant names, and returns the sheet.
func Load(ctx context.Context, store Store, eventID, judgeID string) (*Sheet, error) {
	const op = "judging.load"

	var (
		apps  []model.Application
		evals []model.Evaluation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := store.ApplicationsByEvent(gctx, eventID)
		if err != nil {
			return fmt.Errorf("applications: %w", err)
		}
		apps = a
		return nil
	})
	g.Go(func() error {
		e, err := store.EvaluationsByEvent(gctx, eventID, judgeID)
		if err != nil {
			return fmt.Errorf("evaluations: %w", err)
		}
		evals = e
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.WrapKind(op, errs.ErrUnavailable, err)
	}

	ids := make([]string, 0, len(apps))
	seen := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		if _, ok := seen[a.ParticipantID]; ok || a.ParticipantID == "" {
			continue
		}
		seen[a.ParticipantID] = struct{}{}
		ids = append(ids, a.ParticipantID)
	}

	names := map[string]string{}
	if len(ids) > 0 {
		profiles, err := store.Profiles(ctx, ids)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, errs.WrapKind(op, errs.ErrUnavailable, fmt.Errorf("participant identities: %w", err))
		}
		for i := range profiles {
			names[profiles[i].ID] = model.DisplayName(&profiles[i], model.PlaceholderParticipant)
		}
	}

	participants := make([]Participant, len(ids))
	for i, id := range ids {
		participants[i] = Participant{ID: id, Name: names[id]}
	}
	return NewSheet(eventID, judgeID, participants, evals, store), nil
}
