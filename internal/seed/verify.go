package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/stark/internal/domain/ranking"
	"github.com/okian/stark/pkg/logger"
)

// ErrInconsistent reports a board that breaks its ordering guarantees.
var ErrInconsistent = errors.New("leaderboard is inconsistent")

// Report summarises a verified board.
type Report struct {
	EventID        string
	Participants   int
	AssignedJudges int
	Provisional    int
	Top            []ranking.Result
}

// topN is how many results a Report keeps.
const topN = 3

// Verify rebuilds the board for eventID and checks that averages never rise
// down the list and that ranks run 1..n.
func Verify(ctx context.Context, agg *ranking.Aggregator, eventID string) (Report, error) {
	board, err := agg.Aggregate(ctx, ranking.Query{EventID: eventID})
	if err != nil {
		return Report{}, fmt.Errorf("aggregate %s: %w", eventID, err)
	}
	if err := checkBoard(board); err != nil {
		return Report{}, err
	}

	rep := Report{
		EventID:        eventID,
		Participants:   len(board.Results),
		AssignedJudges: board.AssignedJudges,
		Top:            board.Podium(),
	}
	if len(rep.Top) > topN {
		rep.Top = rep.Top[:topN]
	}
	for i := range board.Results {
		if board.Results[i].Provisional {
			rep.Provisional++
		}
	}

	fields := []logger.Field{
		logger.String("event_id", eventID),
		logger.Int("participants", rep.Participants),
		logger.Int("assigned_judges", rep.AssignedJudges),
		logger.Int("provisional", rep.Provisional),
	}
	if len(rep.Top) > 0 {
		fields = append(fields,
			logger.String("leader", rep.Top[0].Name),
			logger.Float64("leader_average", rep.Top[0].Average),
		)
	}
	logger.Get().Info(ctx, "leaderboard verified", fields...)
	return rep, nil
}

func checkBoard(board ranking.Board) error {
	for i, r := range board.Results {
		if r.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrInconsistent, i+1, r.Rank)
		}
		if i > 0 && r.Average > board.Results[i-1].Average {
			return fmt.Errorf("%w: rank %d (%.4f) is above rank %d (%.4f)",
				ErrInconsistent, r.Rank, r.Average, i, board.Results[i-1].Average)
		}
		if r.VotedJudges > len(r.Evaluations) {
			return fmt.Errorf("%w: %s has %d votes from %d evaluations",
				ErrInconsistent, r.ParticipantID, r.VotedJudges, len(r.Evaluations))
		}
	}
	return nil
}
