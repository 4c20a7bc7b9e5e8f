package roster_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/rollcall/internal/adapters/roster"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

const sample = "rollno\tname\tbranch\n" +
	"7\tAsha\tCSE\n" +
	"x9\tBroken\tECE\n" +
	"12\tJosé\tMECH\n" +
	"\n" +
	"15\tOnly Name\n"

func TestRosterLoad(t *testing.T) {
	Convey("Given a roster file with a bad row", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "students.tsv")
		So(os.WriteFile(path, []byte(sample), 0o600), ShouldBeNil)

		r, err := roster.Load(ctx, path, logger.Get())
		So(err, ShouldBeNil)

		Convey("Then valid rows should be loaded and the bad one skipped", func() {
			So(r.Len(), ShouldEqual, 3)
			So(r.Skipped(), ShouldEqual, 1)

			p, ok := r.Lookup(7)
			So(ok, ShouldBeTrue)
			So(p, ShouldResemble, model.Person{ID: 7, DisplayName: "Asha", Metadata: "CSE"})

			p, ok = r.Lookup(15)
			So(ok, ShouldBeTrue)
			So(p.Metadata, ShouldEqual, "")
		})

		Convey("Then names should be NFC normalized", func() {
			p, _ := r.Lookup(12)
			So(p.DisplayName, ShouldEqual, "José")
		})

		Convey("Then unknown ids should not resolve", func() {
			_, ok := r.Lookup(99)
			So(ok, ShouldBeFalse)
			_, err := r.Resolve(99)
			So(errors.Is(err, roster.ErrUnknownPerson), ShouldBeTrue)
		})

		Convey("When a new person registers", func() {
			p, err := r.Register(ctx, model.Person{ID: 21, DisplayName: "  Meera ", Metadata: "IT"})

			Convey("Then they should be visible and persisted", func() {
				So(err, ShouldBeNil)
				So(p.DisplayName, ShouldEqual, "Meera")
				_, ok := r.Lookup(21)
				So(ok, ShouldBeTrue)

				reloaded, err := roster.Load(ctx, path, nil)
				So(err, ShouldBeNil)
				got, ok := reloaded.Lookup(21)
				So(ok, ShouldBeTrue)
				So(got.Metadata, ShouldEqual, "IT")
				So(reloaded.Len(), ShouldEqual, 4)
			})
		})

		Convey("When an existing id registers again", func() {
			_, err := r.Register(ctx, model.Person{ID: 7, DisplayName: "Other"})

			Convey("Then it should be refused", func() {
				So(errors.Is(err, roster.ErrDuplicatePerson), ShouldBeTrue)
			})
		})

		Convey("When the person is invalid", func() {
			_, err1 := r.Register(ctx, model.Person{ID: 0, DisplayName: "Zero"})
			_, err2 := r.Register(ctx, model.Person{ID: 30})
			_, err3 := r.Register(ctx, model.Person{ID: 31, DisplayName: "Tab\tName"})

			Convey("Then registration should fail", func() {
				So(errors.Is(err1, roster.ErrInvalidPerson), ShouldBeTrue)
				So(errors.Is(err2, roster.ErrInvalidPerson), ShouldBeTrue)
				So(errors.Is(err3, roster.ErrInvalidPerson), ShouldBeTrue)
			})
		})
	})

	Convey("Given no roster file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "data", "students.tsv")
		r, err := roster.Load(ctx, path, nil)
		So(err, ShouldBeNil)
		So(r.Len(), ShouldEqual, 0)

		Convey("When the first person registers", func() {
			_, err := r.Register(ctx, model.Person{ID: 1, DisplayName: "First", Metadata: "CSE"})
			So(err, ShouldBeNil)

			Convey("Then the file should be created with a header", func() {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "rollno\tname\tbranch\n1\tFirst\tCSE\n")
				So(r.People(), ShouldResemble, []model.Person{{ID: 1, DisplayName: "First", Metadata: "CSE"}})
			})
		})
	})
}

func TestRosterRegisterAfterUnterminatedRow(t *testing.T) {
	Convey("Given a roster whose last row has no trailing newline", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "students.tsv")
		So(os.WriteFile(path, []byte("rollno\tname\tbranch\n7\tAsha\tCSE"), 0o600), ShouldBeNil)

		r, err := roster.Load(ctx, path, nil)
		So(err, ShouldBeNil)

		Convey("When a new person registers", func() {
			_, err := r.Register(ctx, model.Person{ID: 12, DisplayName: "Ravi", Metadata: "ECE"})
			So(err, ShouldBeNil)

			Convey("Then a reload should see both rows unchanged", func() {
				reloaded, err := roster.Load(ctx, path, nil)
				So(err, ShouldBeNil)
				So(reloaded.Len(), ShouldEqual, 2)
				So(reloaded.Skipped(), ShouldEqual, 0)
				p, ok := reloaded.Lookup(7)
				So(ok, ShouldBeTrue)
				So(p.Metadata, ShouldEqual, "CSE")
				p, ok = reloaded.Lookup(12)
				So(ok, ShouldBeTrue)
				So(p.Metadata, ShouldEqual, "ECE")
			})
		})
	})
}
