package ranking_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/ranking"
	"github.com/okian/stark/pkg/errs"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeStore struct {
	mu          sync.Mutex
	apps        []model.Application
	evals       []model.Evaluation
	assigned    []string
	profiles    map[string]model.Profile
	evalErr     error
	appsErr     error
	judgeFilter []string
	evalCalls   int
	onApps      func()
}

func (f *fakeStore) ApplicationsByEvent(_ context.Context, eventID string) ([]model.Application, error) {
	if f.onApps != nil {
		f.onApps()
	}
	if f.appsErr != nil {
		return nil, f.appsErr
	}
	var out []model.Application
	for _, a := range f.apps {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) EvaluationsByEvent(_ context.Context, eventID, judgeID string) ([]model.Evaluation, error) {
	f.mu.Lock()
	f.evalCalls++
	f.judgeFilter = append(f.judgeFilter, judgeID)
	f.mu.Unlock()
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	var out []model.Evaluation
	for _, e := range f.evals {
		if e.EventID == eventID && (judgeID == "" || e.JudgeID == judgeID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) AssignedJudges(_ context.Context, _ string) ([]string, error) {
	return f.assigned, nil
}

func (f *fakeStore) Profiles(_ context.Context, ids []string) ([]model.Profile, error) {
	var out []model.Profile
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func all(v float64) model.Scores {
	return model.Scores{Teamwork: model.Score(v), Idea: model.Score(v), Execution: model.Score(v), Business: model.Score(v)}
}

func newStore() *fakeStore {
	return &fakeStore{
		apps: []model.Application{
			{ID: "a1", EventID: "ev", ParticipantID: "p1"},
			{ID: "a2", EventID: "ev", ParticipantID: "p2"},
		},
		profiles: map[string]model.Profile{
			"p1": {ID: "p1", FullName: "Alpha"},
			"p2": {ID: "p2", FullName: "  "},
			"j1": {ID: "j1", FullName: "Grace"},
		},
	}
}

func TestAggregate(t *testing.T) {
	Convey("Given an event with two applied participants", t, func() {
		ctx := context.Background()
		store := newStore()

		Convey("When one judge scores the first participant 8 across the board", func() {
			store.assigned = []string{"j1"}
			store.evals = []model.Evaluation{{ID: "e1", EventID: "ev", ParticipantID: "p1", JudgeID: "j1", Scores: all(8)}}

			board, err := ranking.New(store).Aggregate(ctx, ranking.Query{EventID: "ev"})

			Convey("Then the scored participant leads and the other trails at zero", func() {
				So(err, ShouldBeNil)
				So(board.AssignedJudges, ShouldEqual, 1)
				So(board.Results, ShouldHaveLength, 2)

				first, second := board.Results[0], board.Results[1]
				So(first.ParticipantID, ShouldEqual, "p1")
				So(first.Rank, ShouldEqual, 1)
				So(first.Average, ShouldEqual, 8)
				So(first.VotedJudges, ShouldEqual, 1)
				So(first.Provisional, ShouldBeFalse)
				So(first.Evaluations[0].JudgeName, ShouldEqual, "Grace")

				So(second.ParticipantID, ShouldEqual, "p2")
				So(second.Rank, ShouldEqual, 2)
				So(second.Average, ShouldEqual, 0)
				So(second.VotedJudges, ShouldEqual, 0)
				So(second.Provisional, ShouldBeTrue)
				So(second.Name, ShouldEqual, "Startup")
				So(second.Evaluations, ShouldBeEmpty)
			})
		})

		Convey("When two judges give 10 and 0 on every criterion", func() {
			store.assigned = []string{"j1", "j2"}
			store.evals = []model.Evaluation{
				{ID: "e1", EventID: "ev", ParticipantID: "p1", JudgeID: "j1", Scores: all(10)},
				{ID: "e2", EventID: "ev", ParticipantID: "p1", JudgeID: "j2", Scores: all(0)},
			}

			board, err := ranking.New(store).Aggregate(ctx, ranking.Query{EventID: "ev"})

			Convey("Then the average is 5 and both count as votes", func() {
				So(err, ShouldBeNil)
				r := board.Results[0]
				So(r.Average, ShouldEqual, 5)
				So(r.Teamwork, ShouldEqual, 5)
				So(r.Business, ShouldEqual, 5)
				So(r.VotedJudges, ShouldEqual, 2)
			})

			Convey("And the unknown judge gets the placeholder name", func() {
				So(board.Results[0].Evaluations[1].JudgeName, ShouldEqual, "Judge")
			})
		})

		Convey("When a judge saved a row without any sub-score", func() {
			store.assigned = []string{"j1", "j2"}
			store.evals = []model.Evaluation{
				{ID: "e1", EventID: "ev", ParticipantID: "p1", JudgeID: "j1", Scores: all(10)},
				{ID: "e2", EventID: "ev", ParticipantID: "p1", JudgeID: "j2"},
			}

			board, err := ranking.New(store).Aggregate(ctx, ranking.Query{EventID: "ev"})

			Convey("Then the empty row averages in as zero but is not a vote", func() {
				So(err, ShouldBeNil)
				So(board.Results[0].Average, ShouldEqual, 5)
				So(board.Results[0].VotedJudges, ShouldEqual, 1)
				So(board.Results[0].Provisional, ShouldBeFalse)
			})
		})

		Convey("When stored values are out of range", func() {
			store.evals = []model.Evaluation{{
				ID: "e1", EventID: "ev", ParticipantID: "p1", JudgeID: "j1",
				Scores: model.Scores{Teamwork: model.Score(12), Idea: model.Score(-3), Execution: model.Score(10), Business: model.Score(10)},
			}}

			board, _ := ranking.New(store).Aggregate(ctx, ranking.Query{EventID: "ev"})

			Convey("Then they are clamped", func() {
				So(board.Results[0].Teamwork, ShouldEqual, 10)
				So(board.Results[0].Idea, ShouldEqual, 0)
				So(board.Results[0].Average, ShouldEqual, 7.5)
			})
		})

		Convey("When participants tie", func() {
			store.apps = append(store.apps, model.Application{ID: "a3", EventID: "ev", ParticipantID: "p3"})
			store.evals = []model.Evaluation{
				{ID: "e3", EventID: "ev", ParticipantID: "p3", JudgeID: "j1", Scores: all(6)},
				{ID: "e2", EventID: "ev", ParticipantID: "p2", JudgeID: "j1", Scores: all(6)},
				{ID: "e1", EventID: "ev", ParticipantID: "p1", JudgeID: "j1", Scores: all(6)},
			}

			board, err := ranking.New(store).Aggregate(ctx, ranking.Query{EventID: "ev"})

			Convey("Then application order breaks the tie", func() {
				So(err, ShouldBeNil)
				So(board.Results[0].ParticipantID, ShouldEqual, "p1")
				So(board.Results[1].ParticipantID, ShouldEqual, "p2")
				So(board.Results[2].ParticipantID, ShouldEqual, "p3")
				for i, r := range board.Results {
					So(r.Rank, ShouldEqual, i+1)
				}
			})
		})

		Convey("When an evaluation belongs to a participant who never applied", func() {
			store.evals = []model.Evaluation{{ID: "e9", EventID: "ev", ParticipantID: "ghost", JudgeID: "j1", Scores: all(10)}}

			board, err := ranking.New(store).Aggregate(ctx, ranking.Query{EventID: "ev"})

			Convey("Then it is ignored", func() {
				So(err, ShouldBeNil)
				So(board.Results, ShouldHaveLength, 2)
				So(board.Results[0].Average, ShouldEqual, 0)
			})
		})

		Convey("When the board is restricted to one judge", func() {
			store.evals = []model.Evaluation{
				{ID: "e1", EventID: "ev", ParticipantID: "p1", JudgeID: "j1", Scores: all(2)},
				{ID: "e2", EventID: "ev", ParticipantID: "p1", JudgeID: "j2", Scores: all(10)},
			}

			board, err := ranking.New(store).Aggregate(ctx, ranking.Query{EventID: "ev", JudgeID: "j1"})

			Convey("Then only that judge's rows are read", func() {
				So(err, ShouldBeNil)
				So(store.judgeFilter, ShouldResemble, []string{"j1"})
				So(board.Results[0].Average, ShouldEqual, 2)
				So(board.JudgeID, ShouldEqual, "j1")
			})
		})

		Convey("When the provisional threshold is raised", func() {
			store.assigned = []string{"j1", "j2"}
			store.evals = []model.Evaluation{{ID: "e1", EventID: "ev", ParticipantID: "p1", JudgeID: "j1", Scores: all(8)}}

			board, _ := ranking.New(store, ranking.WithProvisionalThreshold(0.75)).Aggregate(ctx, ranking.Query{EventID: "ev"})

			Convey("Then half the panel is no longer enough", func() {
				So(board.Results[0].Provisional, ShouldBeTrue)
			})
		})

		Convey("When the evaluation read fails", func() {
			store.evalErr = errors.New("connection reset")

			board, err := ranking.New(store).Aggregate(ctx, ranking.Query{EventID: "ev"})

			Convey("Then the whole aggregation fails without partial results", func() {
				So(errors.Is(err, errs.ErrUnavailable), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "connection reset")
				So(board.Results, ShouldBeNil)
			})
		})

		Convey("When the caller cancels during the first fetch", func() {
			cctx, cancel := context.WithCancel(ctx)
			store.onApps = cancel

			board, err := ranking.New(store).Aggregate(cctx, ranking.Query{EventID: "ev"})

			Convey("Then the result is discarded with the context error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(board.Results, ShouldBeNil)
				So(store.evalCalls, ShouldEqual, 0)
			})
		})
	})

	Convey("Given an event nobody applied to", t, func() {
		store := newStore()
		store.apps = nil

		board, err := ranking.New(store).Aggregate(context.Background(), ranking.Query{EventID: "ev"})

		Convey("Then the board is empty and nothing else is read", func() {
			So(err, ShouldBeNil)
			So(board.Results, ShouldBeEmpty)
			So(store.evalCalls, ShouldEqual, 0)
		})
	})

	Convey("Given a query without an event", t, func() {
		_, err := ranking.New(newStore()).Aggregate(context.Background(), ranking.Query{})

		Convey("Then it is rejected as invalid", func() {
			So(errors.Is(err, errs.ErrInvalid), ShouldBeTrue)
			So(errors.Is(err, ranking.ErrMissingEvent), ShouldBeTrue)
		})
	})
}

func TestPodium(t *testing.T) {
	Convey("Given boards of different sizes", t, func() {
		mk := func(n int) ranking.Board {
			b := ranking.Board{Results: []ranking.Result{}}
			for i := 0; i < n; i++ {
				b.Results = append(b.Results, ranking.Result{Rank: i + 1})
			}
			return b
		}

		Convey("Then the podium holds at most three and the rest follows", func() {
			So(mk(2).Podium(), ShouldHaveLength, 2)
			So(mk(2).Rest(), ShouldBeEmpty)
			So(mk(5).Podium(), ShouldHaveLength, 3)
			So(mk(5).Rest(), ShouldHaveLength, 2)
			So(mk(5).Rest()[0].Rank, ShouldEqual, 4)
		})
	})
}
