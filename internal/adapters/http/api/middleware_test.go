package api

import (
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/time/rate"
)

func TestSaveLimiter(t *testing.T) {
	Convey("Given a limiter of one save per ten seconds", t, func() {
		now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		l := newSaveLimiter(rate.Every(10*time.Second), 1)
		l.now = func() time.Time { return now }
		l.lastSweep = now

		Convey("When a judge saves twice at once", func() {
			first, second := l.Allow("j-1"), l.Allow("j-1")

			Convey("Then only the first is allowed", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(l.Allow("j-2"), ShouldBeTrue)
			})
		})

		Convey("When many judges save once and go quiet", func() {
			for _, id := range []string{"j-1", "j-2", "j-3"} {
				l.Allow(id)
			}
			So(l.size(), ShouldEqual, 3)

			now = now.Add(l.idle)
			allowed := l.Allow("j-4")

			Convey("Then their refilled buckets are dropped", func() {
				So(allowed, ShouldBeTrue)
				So(l.size(), ShouldEqual, 1)
				So(l.Allow("j-1"), ShouldBeTrue)
			})
		})

		Convey("When a judge keeps saving", func() {
			l.Allow("j-1")
			now = now.Add(l.idle / 2)
			l.Allow("j-1")
			now = now.Add(l.idle / 2)
			l.Allow("j-2")

			Convey("Then the active bucket is kept", func() {
				So(l.size(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given limiter rates", t, func() {
		Convey("Then the idle window follows the refill time within bounds", func() {
			So(newSaveLimiter(5, 10).idle, ShouldEqual, minLimiterIdle)
			So(newSaveLimiter(0.5, 60).idle, ShouldEqual, 2*time.Minute)
			So(newSaveLimiter(0.000001, 10).idle, ShouldEqual, maxLimiterIdle)
		})

		Convey("Then an unlimited limiter keeps no buckets", func() {
			l := newSaveLimiter(rate.Inf, 1)
			So(l.Allow("j-1"), ShouldBeTrue)
			So(l.size(), ShouldEqual, 0)
		})
	})
}

func TestClientIP(t *testing.T) {
	Convey("Given requests from behind proxies", t, func() {
		r := httptest.NewRequest("GET", "/", nil)

		Convey("Then the first forwarded address wins", func() {
			r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			So(clientIP(r), ShouldEqual, "203.0.113.7")
		})

		Convey("Then the remote address is used without headers", func() {
			r.RemoteAddr = "198.51.100.2:5555"
			So(clientIP(r), ShouldEqual, "198.51.100.2")
		})
	})
}
