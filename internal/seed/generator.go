package seed

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	profileTypeDivisor = 6
	skipDivisor        = 10
)

// Score bands, one per performer profile.
const (
	averageMin  = 3.0
	averageSpan = 4.0
	strongMin   = 7.0
	strongSpan  = 2.0
	weakMin     = 0.5
	weakSpan    = 2.5
	eliteMin    = 9.0
	eliteSpan   = 1.0
	wideMin     = 0.0
	wideSpan    = 10.0
)

// Params shapes a generated fixture.
type Params struct {
	Title        string
	Participants int
	Judges       int
	// SkipRate is the chance, in tenths, that a judge leaves a participant unscored.
	SkipRate int
	Now      time.Time
}

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomInt(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// band picks the score band a participant performs in.
func band() (low, span float64) {
	switch randomInt(profileTypeDivisor) {
	case 0, 1:
		return averageMin, averageSpan
	case 2:
		return strongMin, strongSpan
	case 3:
		return weakMin, weakSpan
	case 4:
		return eliteMin, eliteSpan
	default:
		return wideMin, wideSpan
	}
}

// sample draws one sub-score around the band, rounded to two decimals.
func sample(low, span float64) *float64 {
	v := low + getRandomFloat()*span
	return model.Score(math.Round(v*100) / 100)
}

// Generate builds one event with a sponsor, the given number of applicants
// and a judge panel that scores them.
func Generate(ctx context.Context, p Params) (*Fixture, error) {
	if p.Participants < 1 || p.Judges < 1 {
		return nil, fmt.Errorf("generate: need at least one participant and one judge, got %d and %d", p.Participants, p.Judges)
	}
	if p.Now.IsZero() {
		p.Now = time.Now().UTC()
	}
	if p.Title == "" {
		p.Title = "Generated Hackathon " + p.Now.Format("2006-01-02")
	}

	logger.Get().Info(ctx, "generating fixture",
		logger.Int("participants", p.Participants),
		logger.Int("judges", p.Judges),
	)

	company := model.Profile{
		ID:             uuid.NewString(),
		Role:           model.RoleITCompany,
		FullName:       "Sponsor " + p.Now.Format("0102"),
		ApprovalStatus: model.ApprovalApproved,
	}
	ev := model.Event{
		ID:        uuid.NewString(),
		CompanyID: company.ID,
		Title:     p.Title,
		CreatedAt: p.Now,
	}
	f := &Fixture{
		Profiles: []model.Profile{company},
		Events:   []model.Event{ev},
	}

	judges := make([]string, p.Judges)
	for i := range judges {
		j := model.Profile{
			ID:             uuid.NewString(),
			Role:           model.RoleJudge,
			FullName:       "Judge " + strconv.Itoa(i+1),
			ApprovalStatus: model.ApprovalApproved,
		}
		// every third judge sits on the panel as an approved jury member
		if i%3 == 2 {
			j.Role, j.SubRole = model.RoleIndividual, model.SubRoleJury
		}
		judges[i] = j.ID
		f.Profiles = append(f.Profiles, j)
		f.Assignments = append(f.Assignments, model.JudgeAssignment{EventID: ev.ID, JudgeID: j.ID})
	}

	for i := 0; i < p.Participants; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		participant := model.Profile{
			ID:             uuid.NewString(),
			Role:           model.RoleStartup,
			FullName:       "Team " + strconv.Itoa(i+1),
			ApprovalStatus: model.ApprovalApproved,
		}
		f.Profiles = append(f.Profiles, participant)
		f.Applications = append(f.Applications, model.Application{
			ID:            uuid.NewString(),
			EventID:       ev.ID,
			ParticipantID: participant.ID,
			CreatedAt:     p.Now.Add(time.Duration(i+1) * time.Second),
		})

		low, span := band()
		for _, judgeID := range judges {
			if p.SkipRate > 0 && randomInt(skipDivisor) < p.SkipRate {
				continue
			}
			f.Evaluations = append(f.Evaluations, model.Evaluation{
				EventID:       ev.ID,
				ParticipantID: participant.ID,
				JudgeID:       judgeID,
				Scores: model.Scores{
					Teamwork:  sample(low, span),
					Idea:      sample(low, span),
					Execution: sample(low, span),
					Business:  sample(low, span),
				},
				UpdatedAt: p.Now,
			})
		}
	}

	logger.Get().Info(ctx, "generated fixture",
		logger.Int("profiles", len(f.Profiles)),
		logger.Int("evaluations", len(f.Evaluations)),
	)
	return f, nil
}
