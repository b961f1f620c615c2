package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	. "github.com/smartystreets/goconvey/convey"
)

const secret = "0123456789abcdef0123"

func TestVerifier(t *testing.T) {
	Convey("Given a verifier", t, func() {
		v := NewVerifier(secret)

		Convey("When the token is valid", func() {
			tok, err := Sign(secret, "user-1", time.Hour)
			So(err, ShouldBeNil)
			sub, err := v.Verify(tok)

			Convey("Then the subject is returned", func() {
				So(err, ShouldBeNil)
				So(sub, ShouldEqual, "user-1")
			})
		})

		Convey("When the token has expired", func() {
			tok, _ := Sign(secret, "user-1", -time.Minute)
			_, err := v.Verify(tok)

			Convey("Then it is rejected as expired", func() {
				So(errors.Is(err, ErrExpiredToken), ShouldBeTrue)
			})
		})

		Convey("When the token has no exp claim", func() {
			tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).SignedString([]byte(secret))
			_, err := v.Verify(tok)

			Convey("Then it is rejected as expired", func() {
				So(errors.Is(err, ErrExpiredToken), ShouldBeTrue)
			})
		})

		Convey("When the token is signed with another secret", func() {
			tok, _ := Sign("another-secret-entirely", "user-1", time.Hour)
			_, err := v.Verify(tok)

			Convey("Then it is invalid", func() {
				So(errors.Is(err, ErrInvalidToken), ShouldBeTrue)
			})
		})

		Convey("When the token has no subject", func() {
			tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"exp": time.Now().Add(time.Hour).Unix(),
			}).SignedString([]byte(secret))
			_, err := v.Verify(tok)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, ErrNoSubject), ShouldBeTrue)
			})
		})

		Convey("When the token is garbage", func() {
			_, err := v.Verify("not.a.token")

			Convey("Then it is invalid", func() {
				So(errors.Is(err, ErrInvalidToken), ShouldBeTrue)
			})
		})
	})
}

func TestBearerToken(t *testing.T) {
	Convey("Given requests with different Authorization headers", t, func() {
		req := func(h string) *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/v1/events", http.NoBody)
			if h != "" {
				r.Header.Set("Authorization", h)
			}
			return r
		}

		Convey("Then a bearer token is extracted", func() {
			tok, err := BearerToken(req("Bearer abc.def.ghi"))
			So(err, ShouldBeNil)
			So(tok, ShouldEqual, "abc.def.ghi")

			tok, err = BearerToken(req("bearer  xyz "))
			So(err, ShouldBeNil)
			So(tok, ShouldEqual, "xyz")
		})

		Convey("Then missing and malformed headers are told apart", func() {
			_, err := BearerToken(req(""))
			So(err, ShouldEqual, ErrMissingToken)
			_, err = BearerToken(req("Basic dXNlcjpwYXNz"))
			So(err, ShouldEqual, ErrMalformed)
			_, err = BearerToken(req("Bearer"))
			So(err, ShouldEqual, ErrMalformed)
		})
	})
}

func TestUserIDContext(t *testing.T) {
	Convey("Given a context", t, func() {
		ctx := context.Background()

		Convey("Then an attached id reads back", func() {
			id, ok := UserID(WithUserID(ctx, "u-9"))
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "u-9")
		})

		Convey("Then a bare context has none", func() {
			_, ok := UserID(ctx)
			So(ok, ShouldBeFalse)
		})
	})
}
