package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/stark/internal/app"
	"github.com/okian/stark/internal/adapters/repository/memstore"
	"github.com/okian/stark/internal/domain/audit"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/policy"
	"github.com/okian/stark/pkg/errs"
	"github.com/okian/stark/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func seededStore(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	profiles := []model.Profile{
		{ID: "adm", Role: model.RoleAdmin, FullName: "Root", ApprovalStatus: model.ApprovalApproved},
		{ID: "co-1", Role: model.RoleITCompany, FullName: "Acme", ApprovalStatus: model.ApprovalApproved},
		{ID: "co-2", Role: model.RoleITCompany, FullName: "Globex", ApprovalStatus: model.ApprovalApproved},
		{ID: "su-1", Role: model.RoleStartup, FullName: "Rocket", ApprovalStatus: model.ApprovalApproved},
		{ID: "su-2", Role: model.RoleStartup, FullName: "Comet", ApprovalStatus: model.ApprovalApproved},
		{ID: "su-3", Role: model.RoleStartup, FullName: "Late", ApprovalStatus: model.ApprovalApproved},
		{ID: "j-1", Role: model.RoleJudge, FullName: "Ann", ApprovalStatus: model.ApprovalApproved},
		{ID: "j-2", Role: model.RoleIndividual, SubRole: model.SubRoleJury, FullName: "Bob", ApprovalStatus: model.ApprovalApproved},
		{ID: "j-3", Role: model.RoleIndividual, SubRole: model.SubRoleJury, FullName: "Cid", ApprovalStatus: model.ApprovalPending},
		{ID: "j-4", Role: model.RoleJudge, FullName: "Dee", ApprovalStatus: model.ApprovalApproved},
	}
	for _, p := range profiles {
		if err := s.PutProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.PutEvent(ctx, model.Event{ID: "ev-1", CompanyID: "co-1", Title: "Spring Hack 2025", CreatedAt: base}))
	must(s.PutEvent(ctx, model.Event{ID: "ev-2", CompanyID: "co-2", Title: "Other", CreatedAt: base.Add(time.Hour)}))
	must(s.PutApplication(ctx, model.Application{EventID: "ev-1", ParticipantID: "su-1", CreatedAt: base.Add(time.Minute)}))
	must(s.PutApplication(ctx, model.Application{EventID: "ev-1", ParticipantID: "su-2", CreatedAt: base.Add(2 * time.Minute)}))
	for _, j := range []string{"j-1", "j-2", "j-3"} {
		must(s.PutAssignment(ctx, model.JudgeAssignment{EventID: "ev-1", JudgeID: j}))
	}
	return s
}

func scores(tw, idea, ex, bus float64) model.Scores {
	return model.Scores{Teamwork: model.Score(tw), Idea: model.Score(idea), Execution: model.Score(ex), Business: model.Score(bus)}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(
			service.WithAuditQueueSize(16),
			service.WithAuditWorkers(1),
			service.WithMaxAuditLimit(20),
			service.WithShutdownTimeout(time.Second),
		)

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats()

			Convey("Then it should return basic stats", func() {
				So(stats["started"], ShouldEqual, false)
				So(stats["auditQueueCapacity"], ShouldEqual, 16)
				So(stats["auditWorkers"], ShouldEqual, 1)
			})
		})

		Convey("When starting twice and stopping twice", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			started := svc.GetStats()
			svc.Stop()
			svc.Stop()

			Convey("Then both calls are idempotent", func() {
				So(started["started"], ShouldEqual, true)
				So(started["auditQueueLength"], ShouldEqual, 0)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Authenticate(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(seededStore(t)))

		Convey("When the user exists", func() {
			actor, err := svc.Authenticate(ctx, "j-2")

			Convey("Then the actor carries the profile's role", func() {
				So(err, ShouldBeNil)
				So(actor.UserID, ShouldEqual, "j-2")
				So(actor.IsJudge(), ShouldBeTrue)
			})
		})

		Convey("When the user is unknown or empty", func() {
			_, unknown := svc.Authenticate(ctx, "ghost")
			_, empty := svc.Authenticate(ctx, "")

			Convey("Then both are unauthenticated", func() {
				So(errors.Is(unknown, errs.ErrUnauthenticated), ShouldBeTrue)
				So(errors.Is(empty, errs.ErrUnauthenticated), ShouldBeTrue)
			})
		})
	})
}

func TestService_ListEvents(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(seededStore(t)))
		actor := func(id string) policy.Actor {
			a, err := svc.Authenticate(ctx, id)
			So(err, ShouldBeNil)
			return a
		}

		Convey("Then each role sees its own scope", func() {
			all, err := svc.ListEvents(ctx, actor("adm"))
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 2)

			owned, err := svc.ListEvents(ctx, actor("co-1"))
			So(err, ShouldBeNil)
			So(len(owned), ShouldEqual, 1)
			So(owned[0].ID, ShouldEqual, "ev-1")

			judged, err := svc.ListEvents(ctx, actor("j-2"))
			So(err, ShouldBeNil)
			So(len(judged), ShouldEqual, 1)

			none, err := svc.ListEvents(ctx, actor("su-1"))
			So(err, ShouldBeNil)
			So(none, ShouldNotBeNil)
			So(len(none), ShouldEqual, 0)
		})

		Convey("Then an anonymous actor is refused", func() {
			_, err := svc.ListEvents(ctx, policy.Actor{})
			So(errors.Is(err, errs.ErrForbidden), ShouldBeTrue)
		})
	})
}

func TestService_JudgingFlow(t *testing.T) {
	Convey("Given a started service over a seeded store", t, func() {
		ctx := context.Background()
		store := seededStore(t)
		svc := service.New(service.WithStore(store), service.WithAuditWorkers(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		ann, _ := svc.Authenticate(ctx, "j-1")
		bob, _ := svc.Authenticate(ctx, "j-2")
		acme, _ := svc.Authenticate(ctx, "co-1")

		Convey("When two judges score both participants", func() {
			_, err := svc.SaveEvaluation(ctx, ann, "ev-1", "su-1", scores(8, 8, 8, 8))
			So(err, ShouldBeNil)
			_, err = svc.SaveEvaluation(ctx, bob, "ev-1", "su-1", scores(10, 10, 10, 10))
			So(err, ShouldBeNil)
			row, err := svc.SaveEvaluation(ctx, ann, "ev-1", "su-2", scores(12, -3, 5, 5))
			So(err, ShouldBeNil)

			Convey("Then saved rows are clamped and carry an id", func() {
				So(row.EvaluationID, ShouldNotBeEmpty)
				So(*row.Scores.Teamwork, ShouldEqual, 10)
				So(*row.Scores.Idea, ShouldEqual, 0)
				So(row.Average(), ShouldEqual, 5)
			})

			Convey("Then the sponsor leaderboard ranks them", func() {
				ev, board, err := svc.Leaderboard(ctx, acme, "ev-1")
				So(err, ShouldBeNil)
				So(ev.Title, ShouldEqual, "Spring Hack 2025")
				So(board.AssignedJudges, ShouldEqual, 3)
				So(len(board.Results), ShouldEqual, 2)
				So(board.Results[0].ParticipantID, ShouldEqual, "su-1")
				So(board.Results[0].Average, ShouldEqual, 9)
				So(board.Results[0].VotedJudges, ShouldEqual, 2)
				So(board.Results[0].Provisional, ShouldBeFalse)
				So(board.Results[1].Provisional, ShouldBeTrue)
			})

			Convey("Then each judge's board ranks by that judge's own scores", func() {
				_, annBoard, err := svc.JudgeBoard(ctx, ann, "ev-1")
				So(err, ShouldBeNil)
				So(annBoard.JudgeID, ShouldEqual, "j-1")
				So(annBoard.AssignedJudges, ShouldEqual, 3)
				So(len(annBoard.Results), ShouldEqual, 2)
				So(annBoard.Results[0].ParticipantID, ShouldEqual, "su-1")
				So(annBoard.Results[0].Average, ShouldEqual, 8)
				So(annBoard.Results[1].Average, ShouldEqual, 5)

				_, bobBoard, err := svc.JudgeBoard(ctx, bob, "ev-1")
				So(err, ShouldBeNil)
				So(bobBoard.Results[0].Average, ShouldEqual, 10)
				So(bobBoard.Results[0].VotedJudges, ShouldEqual, 1)
				So(bobBoard.Results[1].VotedJudges, ShouldEqual, 0)

				_, _, err = svc.JudgeBoard(ctx, acme, "ev-1")
				So(errors.Is(err, errs.ErrForbidden), ShouldBeTrue)
			})

			Convey("Then the export is CSV with a slugged filename", func() {
				name, body, err := svc.Export(ctx, acme, "ev-1")
				So(err, ShouldBeNil)
				So(name, ShouldEqual, "results-spring-hack-2025.csv")
				lines := strings.Split(strings.TrimSpace(string(body)), "\n")
				So(len(lines), ShouldEqual, 3)
				So(lines[1], ShouldStartWith, `1,"Rocket",9.00`)
			})

			Convey("Then re-saving keeps the evaluation id", func() {
				again, err := svc.SaveEvaluation(ctx, ann, "ev-1", "su-2", scores(1, 1, 1, 1))
				So(err, ShouldBeNil)
				So(again.EvaluationID, ShouldEqual, row.EvaluationID)

				_, sheet, err := svc.Sheet(ctx, ann, "ev-1")
				So(err, ShouldBeNil)
				r, ok := sheet.Row("su-2")
				So(ok, ShouldBeTrue)
				So(r.Average(), ShouldEqual, 1)
				best, ok := sheet.Best()
				So(ok, ShouldBeTrue)
				So(best, ShouldEqual, "su-1")
			})

			Convey("Then the judge's audit trail lists the saves after a drain", func() {
				svc.Stop()
				entries, err := store.AuditByUser(ctx, "j-1", 10)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Action, ShouldEqual, audit.ActionEvaluationSaved)
			})
		})

		Convey("When a judge scores someone who has not applied", func() {
			_, err := svc.SaveEvaluation(ctx, ann, "ev-1", "su-3", scores(5, 5, 5, 5))

			Convey("Then it is not found", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the wrong people try to act", func() {
			cid, _ := svc.Authenticate(ctx, "j-3")
			dee, _ := svc.Authenticate(ctx, "j-4")
			globex, _ := svc.Authenticate(ctx, "co-2")
			rocket, _ := svc.Authenticate(ctx, "su-1")

			_, pendingErr := svc.SaveEvaluation(ctx, cid, "ev-1", "su-1", scores(5, 5, 5, 5))
			_, unassignedErr := svc.SaveEvaluation(ctx, dee, "ev-1", "su-1", scores(5, 5, 5, 5))
			_, _, otherCompanyErr := svc.Leaderboard(ctx, globex, "ev-1")
			_, _, startupErr := svc.Export(ctx, rocket, "ev-1")
			_, _, judgeBoardErr := svc.Leaderboard(ctx, ann, "ev-1")

			Convey("Then each is forbidden", func() {
				So(errors.Is(pendingErr, errs.ErrForbidden), ShouldBeTrue)
				So(errors.Is(unassignedErr, errs.ErrForbidden), ShouldBeTrue)
				So(errors.Is(otherCompanyErr, errs.ErrForbidden), ShouldBeTrue)
				So(errors.Is(startupErr, errs.ErrForbidden), ShouldBeTrue)
				So(errors.Is(judgeBoardErr, errs.ErrForbidden), ShouldBeTrue)
			})
		})

		Convey("When the event does not exist", func() {
			_, _, err := svc.Leaderboard(ctx, acme, "nope")
			_, _, missing := svc.Sheet(ctx, ann, "")

			Convey("Then it is not found, and a blank id is invalid", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
				So(errors.Is(missing, errs.ErrInvalid), ShouldBeTrue)
			})
		})
	})
}

func TestService_AuditLog(t *testing.T) {
	Convey("Given a store with audit history", t, func() {
		ctx := context.Background()
		store := seededStore(t)
		base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		for i := range 30 {
			So(store.InsertAudit(ctx, audit.Entry{
				UserID:    "co-1",
				Action:    audit.ActionResultsViewed,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}), ShouldBeNil)
		}
		svc := service.New(service.WithStore(store), service.WithMaxAuditLimit(20))
		acme, _ := svc.Authenticate(ctx, "co-1")

		Convey("When asking for more than the ceiling", func() {
			entries, err := svc.AuditLog(ctx, acme, 500)

			Convey("Then the ceiling applies, newest first", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 20)
				So(entries[0].CreatedAt.Equal(base.Add(29*time.Minute)), ShouldBeTrue)
			})
		})

		Convey("When no limit is given", func() {
			entries, err := svc.AuditLog(ctx, acme, 0)

			Convey("Then the default page size is capped by the ceiling", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 20)
			})
		})

		Convey("When the user has no history", func() {
			rocket, _ := svc.Authenticate(ctx, "su-1")
			entries, err := svc.AuditLog(ctx, rocket, 10)

			Convey("Then an empty list is returned", func() {
				So(err, ShouldBeNil)
				So(entries, ShouldNotBeNil)
				So(len(entries), ShouldEqual, 0)
			})
		})
	})
}
