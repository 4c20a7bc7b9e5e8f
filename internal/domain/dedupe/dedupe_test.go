package dedupe_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dedupe "github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func at(hh, mm int) time.Time {
	return time.Date(2025, 3, 14, hh, mm, 0, 0, time.UTC)
}

func okCommit(n *int) func(context.Context) error {
	return func(context.Context) error {
		*n++
		return nil
	}
}

func TestCacheMark(t *testing.T) {
	Convey("Given an empty cache with the default policy", t, func() {
		ctx := context.Background()
		c := dedupe.New()
		appends := 0

		Convey("Then the policy should be one hour anchored to the day", func() {
			So(c.Policy().Window, ShouldEqual, time.Hour)
			So(c.Policy().Anchor, ShouldEqual, dedupe.AnchorSameDay)
			So(c.Size(), ShouldEqual, 0)
		})

		Convey("When Asha is marked at 09:00, 09:30 and 10:05", func() {
			d1, err1 := c.Mark(ctx, 7, at(9, 0), okCommit(&appends))
			d2, err2 := c.Mark(ctx, 7, at(9, 30), okCommit(&appends))
			d3, err3 := c.Mark(ctx, 7, at(10, 5), okCommit(&appends))

			Convey("Then the outcomes should be success, reverified, success", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(d1, ShouldEqual, dedupe.Allow)
				So(d2, ShouldEqual, dedupe.Reverify)
				So(d3, ShouldEqual, dedupe.Allow)
				So(appends, ShouldEqual, 2)

				e, ok := c.Get(7)
				So(ok, ShouldBeTrue)
				So(e.LastMarkedAt, ShouldEqual, at(10, 5))
				So(e.LastMarkedDate, ShouldEqual, "2025-03-14")
			})
		})

		Convey("When the same person is marked twice inside the window", func() {
			_, _ = c.Mark(ctx, 3, at(9, 0), okCommit(&appends))
			d, err := c.Mark(ctx, 3, at(9, 59), okCommit(&appends))

			Convey("Then only one record should be appended", func() {
				So(err, ShouldBeNil)
				So(d, ShouldEqual, dedupe.Reverify)
				So(appends, ShouldEqual, 1)
			})
		})

		Convey("When exactly one window has elapsed", func() {
			_, _ = c.Mark(ctx, 3, at(9, 0), okCommit(&appends))
			d, _ := c.Mark(ctx, 3, at(10, 0), okCommit(&appends))

			Convey("Then a new record should be allowed", func() {
				So(d, ShouldEqual, dedupe.Allow)
				So(appends, ShouldEqual, 2)
			})
		})

		Convey("When the commit fails", func() {
			boom := errors.New("disk full")
			d, err := c.Mark(ctx, 5, at(9, 0), func(context.Context) error { return boom })

			Convey("Then the error should surface and the cache stay unchanged", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(d, ShouldEqual, dedupe.Allow)
				_, ok := c.Get(5)
				So(ok, ShouldBeFalse)
			})

			Convey("And a retry succeeds", func() {
				d, err := c.Mark(ctx, 5, at(9, 1), okCommit(&appends))

				Convey("Then it should be recorded as a fresh mark", func() {
					So(err, ShouldBeNil)
					So(d, ShouldEqual, dedupe.Allow)
					So(appends, ShouldEqual, 1)
				})
			})
		})

		Convey("When no commit function is given", func() {
			_, err := c.Mark(ctx, 1, at(9, 0), nil)

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, dedupe.ErrNilCommit), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := c.Mark(cctx, 1, at(9, 0), okCommit(&appends))

			Convey("Then nothing should be committed", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(appends, ShouldEqual, 0)
			})
		})
	})
}

func TestCacheAnchors(t *testing.T) {
	Convey("Given a mark at 23:50", t, func() {
		late := time.Date(2025, 3, 14, 23, 50, 0, 0, time.UTC)
		early := late.Add(20 * time.Minute) // 00:10 next day

		Convey("When the anchor is the calendar day", func() {
			c := dedupe.New()
			c.Seed(model.NewCacheEntry(9, late))

			Convey("Then a sighting after midnight should be a new record", func() {
				So(c.Decide(9, early), ShouldEqual, dedupe.Allow)
			})
		})

		Convey("When the anchor is rolling", func() {
			c := dedupe.New(dedupe.WithAnchor(dedupe.AnchorRolling), dedupe.WithWindow(time.Hour))
			c.Seed(model.NewCacheEntry(9, late))

			Convey("Then a sighting after midnight should still reverify", func() {
				So(c.Decide(9, early), ShouldEqual, dedupe.Reverify)
				So(c.Decide(9, late.Add(time.Hour)), ShouldEqual, dedupe.Allow)
			})
		})

		Convey("When invalid options are given", func() {
			c := dedupe.New(dedupe.WithAnchor("weekly"), dedupe.WithWindow(-time.Minute))

			Convey("Then the defaults should be kept", func() {
				So(c.Policy().Anchor, ShouldEqual, dedupe.AnchorSameDay)
				So(c.Policy().Window, ShouldEqual, time.Hour)
			})
		})
	})
}

func TestCacheSeedAndSnapshot(t *testing.T) {
	Convey("Given seeded entries", t, func() {
		c := dedupe.New()
		c.Seed(model.NewCacheEntry(2, at(9, 0)))
		c.Seed(model.NewCacheEntry(1, at(9, 5)))
		c.Seed(model.NewCacheEntry(2, at(11, 0)))

		Convey("Then later seeds should overwrite earlier ones", func() {
			So(c.Size(), ShouldEqual, 2)
			snap := c.Snapshot()
			So(len(snap), ShouldEqual, 2)
			So(snap[0].PersonID, ShouldEqual, 1)
			So(snap[1].PersonID, ShouldEqual, 2)
			So(snap[1].LastMarkedAt, ShouldEqual, at(11, 0))
			So(dedupe.Reverify.String(), ShouldEqual, "reverify")
			So(dedupe.Allow.String(), ShouldEqual, "allow")
		})
	})
}

func TestCacheConcurrency(t *testing.T) {
	Convey("Given N concurrent marks for the same person", t, func() {
		ctx := context.Background()
		c := dedupe.New()
		const n = 50
		var appends atomic.Int32
		var allows, reverifies atomic.Int32

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				d, err := c.Mark(ctx, 7, at(9, 0), func(context.Context) error {
					appends.Add(1)
					time.Sleep(time.Millisecond)
					return nil
				})
				if err != nil {
					return
				}
				if d == dedupe.Allow {
					allows.Add(1)
				} else {
					reverifies.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		Convey("Then exactly one should succeed and the rest reverify", func() {
			So(allows.Load(), ShouldEqual, 1)
			So(reverifies.Load(), ShouldEqual, n-1)
			So(appends.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given a slow commit for one person", t, func() {
		ctx := context.Background()
		c := dedupe.New()
		release := make(chan struct{})
		entered := make(chan struct{})

		go func() {
			_, _ = c.Mark(ctx, 1, at(9, 0), func(context.Context) error {
				close(entered)
				<-release
				return nil
			})
		}()
		<-entered

		Convey("Then another person should not be blocked", func() {
			done := make(chan dedupe.Decision, 1)
			go func() {
				d, _ := c.Mark(ctx, 2, at(9, 0), func(context.Context) error { return nil })
				done <- d
			}()
			select {
			case d := <-done:
				So(d, ShouldEqual, dedupe.Allow)
			case <-time.After(2 * time.Second):
				So("person 2 blocked", ShouldBeEmpty)
			}
			close(release)
		})
	})
}
