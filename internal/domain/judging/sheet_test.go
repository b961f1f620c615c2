package judging_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/stark/internal/domain/judging"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/pkg/errs"
	. "github.com/smartystreets/goconvey/convey"
)

type keyed struct{ event, participant, judge string }

// fakeStore keys evaluations like the real unique constraint.
type fakeStore struct {
	apps     []model.Application
	profiles map[string]model.Profile
	rows     map[keyed]model.Evaluation
	saveErr  error
	readErr  error
	saves    int
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps: []model.Application{
			{ID: "a1", EventID: "ev", ParticipantID: "p1"},
			{ID: "a2", EventID: "ev", ParticipantID: "p2"},
			{ID: "a3", EventID: "ev", ParticipantID: "p3"},
		},
		profiles: map[string]model.Profile{
			"p1": {ID: "p1", FullName: "Alpha"},
			"p2": {ID: "p2", FullName: "Beta"},
		},
		rows: map[keyed]model.Evaluation{},
	}
}

func (f *fakeStore) UpsertEvaluation(_ context.Context, e model.Evaluation) (string, error) {
	f.saves++
	if f.saveErr != nil {
		return "", f.saveErr
	}
	k := keyed{e.EventID, e.ParticipantID, e.JudgeID}
	if prev, ok := f.rows[k]; ok {
		e.ID = prev.ID
	} else {
		f.nextID++
		e.ID = "eval-" + string(rune('0'+f.nextID))
	}
	f.rows[k] = e
	return e.ID, nil
}

func (f *fakeStore) ApplicationsByEvent(_ context.Context, eventID string) ([]model.Application, error) {
	if f.readErr != nil {
		return nil, f.readErr
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
	var out []model.Evaluation
	for k, e := range f.rows {
		if k.event == eventID && (judgeID == "" || k.judge == judgeID) {
			out = append(out, e)
		}
	}
	return out, nil
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

func TestLoad(t *testing.T) {
	Convey("Given a judge who already scored one participant", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.rows[keyed{"ev", "p2", "j1"}] = model.Evaluation{
			ID: "eval-x", EventID: "ev", ParticipantID: "p2", JudgeID: "j1",
			Scores: model.Scores{Idea: model.Score(7)},
		}
		store.rows[keyed{"ev", "p1", "j2"}] = model.Evaluation{
			ID: "eval-y", EventID: "ev", ParticipantID: "p1", JudgeID: "j2",
			Scores: model.Scores{Idea: model.Score(9)},
		}

		sheet, err := judging.Load(ctx, store, "ev", "j1")

		Convey("Then every applicant has a row in application order", func() {
			So(err, ShouldBeNil)
			rows := sheet.Rows()
			So(rows, ShouldHaveLength, 3)
			So(rows[0].ParticipantID, ShouldEqual, "p1")
			So(rows[0].Name, ShouldEqual, "Alpha")
			So(rows[2].Name, ShouldEqual, "Startup")
		})

		Convey("Then only this judge's evaluation fills its row", func() {
			p1, _ := sheet.Row("p1")
			So(p1.EvaluationID, ShouldBeEmpty)
			So(p1.Scores, ShouldResemble, model.Scores{})

			p2, _ := sheet.Row("p2")
			So(p2.EvaluationID, ShouldEqual, "eval-x")
			So(*p2.Scores.Idea, ShouldEqual, 7)
		})
	})

	Convey("Given a store that cannot be read", t, func() {
		store := newFakeStore()
		store.readErr = errors.New("timeout")

		_, err := judging.Load(context.Background(), store, "ev", "j1")

		Convey("Then loading fails as unavailable", func() {
			So(errors.Is(err, errs.ErrUnavailable), ShouldBeTrue)
		})
	})
}

func TestSheetEditing(t *testing.T) {
	Convey("Given a fresh sheet", t, func() {
		store := newFakeStore()
		sheet, err := judging.Load(context.Background(), store, "ev", "j1")
		So(err, ShouldBeNil)

		Convey("When the judge types scores", func() {
			So(sheet.SetScore("p1", model.FieldTeamwork, "12"), ShouldBeNil)
			So(sheet.SetScore("p1", model.FieldIdea, "8"), ShouldBeNil)
			So(sheet.SetScore("p1", model.FieldExecution, ""), ShouldBeNil)
			So(sheet.SetScore("p1", model.FieldBusiness, "abc"), ShouldBeNil)

			Convey("Then input is clamped and blanks stay unset", func() {
				row, _ := sheet.Row("p1")
				So(*row.Scores.Teamwork, ShouldEqual, 10)
				So(*row.Scores.Idea, ShouldEqual, 8)
				So(row.Scores.Execution, ShouldBeNil)
				So(row.Scores.Business, ShouldBeNil)
				So(row.Average(), ShouldEqual, 4.5)
			})

			Convey("Then nothing was written to the store", func() {
				So(store.saves, ShouldEqual, 0)
			})
		})

		Convey("When the participant or field is unknown", func() {
			errParticipant := sheet.SetScore("ghost", model.FieldIdea, "5")
			errField := sheet.SetScore("p1", model.Field("design"), "5")

			Convey("Then the edit is refused", func() {
				So(errors.Is(errParticipant, judging.ErrUnknownParticipant), ShouldBeTrue)
				So(errors.Is(errParticipant, errs.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errField, judging.ErrUnknownField), ShouldBeTrue)
				So(errors.Is(errField, errs.ErrInvalid), ShouldBeTrue)
			})
		})

		Convey("When nothing is scored yet", func() {
			best, ok := sheet.Best()

			Convey("Then the first row is flagged best and the overall is zero", func() {
				So(ok, ShouldBeTrue)
				So(best, ShouldEqual, "p1")
				So(sheet.OverallAverage(), ShouldEqual, 0)
			})
		})

		Convey("When two rows share the top average", func() {
			So(sheet.SetScores("p2", model.Scores{Idea: model.Score(8)}), ShouldBeNil)
			So(sheet.SetScores("p3", model.Scores{Idea: model.Score(8)}), ShouldBeNil)
			best, _ := sheet.Best()

			Convey("Then the first of them wins", func() {
				So(best, ShouldEqual, "p2")
				So(sheet.OverallAverage(), ShouldAlmostEqual, (0+2+2)/3.0)
			})
		})
	})

	Convey("Given an empty sheet", t, func() {
		sheet := judging.NewSheet("ev", "j1", nil, nil, newFakeStore())

		Convey("Then nothing is best and the overall is zero", func() {
			_, ok := sheet.Best()
			So(ok, ShouldBeFalse)
			So(sheet.OverallAverage(), ShouldEqual, 0)
		})
	})
}

func TestSheetSave(t *testing.T) {
	Convey("Given a sheet with an edited row", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		sheet, _ := judging.Load(ctx, store, "ev", "j1")
		So(sheet.SetScores("p1", model.Scores{Teamwork: model.Score(9), Idea: model.Score(15)}), ShouldBeNil)

		Convey("When it is saved twice", func() {
			first, err1 := sheet.Save(ctx, "p1")
			second, err2 := sheet.Save(ctx, "p1")

			Convey("Then a single row exists under one id", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.EvaluationID, ShouldNotBeEmpty)
				So(second.EvaluationID, ShouldEqual, first.EvaluationID)
				So(store.rows, ShouldHaveLength, 1)
				So(*store.rows[keyed{"ev", "p1", "j1"}].Idea, ShouldEqual, 10)
			})
		})

		Convey("When the store refuses the write", func() {
			store.saveErr = errors.New("permission denied for table evaluations")
			row, err := sheet.Save(ctx, "p1")

			Convey("Then the error surfaces and the local edit is kept", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "permission denied")
				So(*row.Scores.Teamwork, ShouldEqual, 9)
				kept, _ := sheet.Row("p1")
				So(*kept.Scores.Teamwork, ShouldEqual, 9)
				So(kept.EvaluationID, ShouldBeEmpty)
			})

			Convey("And a retry after recovery succeeds", func() {
				store.saveErr = nil
				row, err := sheet.Save(ctx, "p1")
				So(err, ShouldBeNil)
				So(row.EvaluationID, ShouldNotBeEmpty)
			})
		})

		Convey("When the participant is not on the sheet", func() {
			_, err := sheet.Save(ctx, "ghost")

			Convey("Then nothing is written", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
				So(store.saves, ShouldEqual, 0)
			})
		})
	})
}
