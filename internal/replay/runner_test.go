package replay

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/ghostrun/internal/adapters/http/api"
	service "github.com/okian/ghostrun/internal/app"
	"github.com/okian/ghostrun/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func replayInProcess(sc *Scenario) (*Result, error) {
	ctx := context.Background()
	d, err := NewServiceDriver(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return Run(ctx, sc, d, Config{})
}

func TestRun_InProcess(t *testing.T) {
	Convey("Given the basic scenario", t, func() {
		sc, err := LoadScenario("testdata/basic.yaml")
		So(err, ShouldBeNil)

		Convey("When it is replayed in process", func() {
			res, err := replayInProcess(sc)

			Convey("Then every expectation holds", func() {
				So(err, ShouldBeNil)
				So(res.Mismatches, ShouldBeEmpty)
				So(res.Stats.Steps, ShouldEqual, 21)
				So(res.Stats.Settled, ShouldEqual, 4)
				So(res.Stats.Abandoned, ShouldEqual, 1)
				So(res.Stats.Rejected, ShouldEqual, 6)
			})

			Convey("Then the published board keeps the two best ratings", func() {
				So(len(res.Leaderboard), ShouldEqual, 2)
				So(res.Leaderboard[0].Account, ShouldEqual, "bob")
				So(res.Leaderboard[0].EP, ShouldEqual, 250)
				So(res.Leaderboard[1].Account, ShouldEqual, "carol")
				So(res.Leaderboard[1].EP, ShouldEqual, 240)
			})

			Convey("Then a second replay gives the same digest", func() {
				again, err := replayInProcess(sc)
				So(err, ShouldBeNil)
				So(again.Digest, ShouldEqual, res.Digest)
				So(len(res.Digest), ShouldEqual, 64)
			})
		})

		Convey("When an expectation is wrong", func() {
			wrong := uint16(999)
			sc.Steps[2].Expect.EP = &wrong
			res, err := replayInProcess(sc)

			Convey("Then the mismatch is reported with the result", func() {
				So(errors.Is(err, ErrExpectation), ShouldBeTrue)
				So(res, ShouldNotBeNil)
				So(len(res.Mismatches), ShouldEqual, 1)
				So(res.Mismatches[0], ShouldContainSubstring, "ep 70, want 999")
			})
		})
	})
}

func TestRun_OverHTTP(t *testing.T) {
	Convey("Given a service served over HTTP", t, func() {
		sc, err := LoadScenario("testdata/basic.yaml")
		So(err, ShouldBeNil)

		svc := service.New(
			service.WithSeedEntropy(sc.SeedEntropy),
			service.WithMaxTurns(sc.MaxTurns),
			service.WithLeaderboard(sc.Leaderboard.Size, sc.Leaderboard.Surplus),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		srv := httptest.NewServer(api.NewServer(svc, svc, 100).Routes())
		defer srv.Close()

		Convey("When the scenario is replayed through the API", func() {
			d := NewHTTPDriver(srv.URL, time.Second, sc.Leaderboard.Size)
			defer d.Close()
			res, err := Run(context.Background(), sc, d, Config{})

			Convey("Then it matches the in-process replay", func() {
				So(err, ShouldBeNil)
				So(res.Mismatches, ShouldBeEmpty)

				local, err := replayInProcess(sc)
				So(err, ShouldBeNil)
				So(res.Digest, ShouldEqual, local.Digest)
			})
		})
	})
}

func TestOutcomeOverHTTP(t *testing.T) {
	Convey("Given error responses of the API", t, func() {
		Convey("Then a finishing run maps to its own outcome", func() {
			err := mapStatus(409, "/runs/alice/battles", apiError{Code: "run_finishing", Message: "run is finished"})
			So(errors.Is(err, service.ErrRunFinishing), ShouldBeTrue)
			So(outcome(err), ShouldEqual, OutcomeRunFinishing)
			So(isTransportError(outcome(err)), ShouldBeFalse)
		})

		Convey("Then other conflicts still map to aborted settlements", func() {
			err := mapStatus(409, "/runs/alice/battles", apiError{Code: "settlement_aborted", Message: "no selectable ghost"})
			So(outcome(err), ShouldEqual, OutcomeGhostSelection)
		})
	})
}
