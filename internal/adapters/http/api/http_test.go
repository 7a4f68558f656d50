package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/ghostrun/internal/adapters/http/api"
	service "github.com/okian/ghostrun/internal/app"
	"github.com/okian/ghostrun/internal/adapters/repository"
	"github.com/okian/ghostrun/internal/domain/ghost"
	"github.com/okian/ghostrun/internal/domain/model"
	"github.com/okian/ghostrun/internal/domain/rating"
	"github.com/okian/ghostrun/internal/domain/run"
	"github.com/okian/ghostrun/internal/domain/types"
	"github.com/okian/ghostrun/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDependencies records the last call and returns canned results.
type mockDependencies struct {
	state     run.State
	runErr    error
	report    service.BattleReport
	finish    service.FinishResult
	place     rating.Placement
	player    model.PlayerRating
	playerErr error
	topN      []types.Entry
	topNErr   error
	rank      types.Entry
	rankErr   error
}

func (m *mockDependencies) StartRun(_ context.Context, _ string) (run.State, error) {
	return m.state, m.runErr
}

func (m *mockDependencies) Run(_ context.Context, _ string) (run.State, error) {
	return m.state, m.runErr
}

func (m *mockDependencies) AbandonRun(_ context.Context, _ string) error {
	return m.runErr
}

func (m *mockDependencies) FinishBattle(_ context.Context, _ string, report service.BattleReport) (run.State, error) {
	m.report = report
	return m.state, m.runErr
}

func (m *mockDependencies) FinishRun(_ context.Context, _ string, place rating.Placement) (service.FinishResult, error) {
	m.place = place
	return m.finish, m.runErr
}

func (m *mockDependencies) Player(_ context.Context, _ string) (model.PlayerRating, error) {
	return m.player, m.playerErr
}

func (m *mockDependencies) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if m.topNErr != nil {
		return nil, m.topNErr
	}
	if n > len(m.topN) {
		return m.topN, nil
	}
	return m.topN[:n], nil
}

func (m *mockDependencies) Rank(_ context.Context, _ string) (types.Entry, error) {
	return m.rank, m.rankErr
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var resp struct {
		Code string `json:"code"`
	}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	return resp.Code
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{
			state: run.State{ID: "run-1", EP: 300, UpgradeCoin: run.NewUpgradeCoin(2)},
			topN:  []types.Entry{{Rank: 1, Account: "alice", EP: 70}},
			rank:  types.Entry{Rank: 1, Account: "alice", EP: 70},
		}
		stats := &mockStatsProvider{stats: map[string]any{"started": true}}
		h := api.NewServer(deps, stats, 100).Routes()

		Convey("Then the health endpoint reports ok", func() {
			w := serve(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then the metrics endpoint serves the exposition format", func() {
			_ = serve(h, http.MethodGet, "/healthz", "")
			w := serve(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "ghostrun_settlement_http_requests_total")
		})

		Convey("Then the stats endpoint returns the provider stats", func() {
			w := serve(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then starting a run returns 201 with the run", func() {
			w := serve(h, http.MethodPost, "/runs/alice", "")
			So(w.Code, ShouldEqual, http.StatusCreated)
			var st run.State
			So(json.NewDecoder(w.Body).Decode(&st), ShouldBeNil)
			So(st.ID, ShouldEqual, "run-1")
		})

		Convey("Then reading a run returns 200", func() {
			w := serve(h, http.MethodGet, "/runs/alice", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then abandoning a run returns 204", func() {
			w := serve(h, http.MethodDelete, "/runs/alice", "")
			So(w.Code, ShouldEqual, http.StatusNoContent)
		})

		Convey("Then the leaderboard and rank endpoints are routed", func() {
			So(serve(h, http.MethodGet, "/leaderboard?limit=10", "").Code, ShouldEqual, http.StatusOK)
			So(serve(h, http.MethodGet, "/rank/alice", "").Code, ShouldEqual, http.StatusOK)
			So(serve(h, http.MethodGet, "/players/alice", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then unknown paths return 404", func() {
			So(serve(h, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a wrong method returns 405", func() {
			So(serve(h, http.MethodPut, "/leaderboard", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestRunsHandler_FinishBattle(t *testing.T) {
	Convey("Given the battle endpoint", t, func() {
		deps := &mockDependencies{
			state: run.State{BattleGhostIndex: 2, UpgradeCoin: run.UpgradeCoin{}},
		}
		h := api.NewServer(deps, &mockStatsProvider{}, 100).Routes()

		Convey("When a battle is reported with a roster", func() {
			body := `{"grade_and_board":{"grade":3,"board":[1,2]},` +
				`"ghost_states":[{"status":"active","health":20},{"status":"retired","health":0,"final_turn":4},{"status":"active","health":5}]}`
			w := serve(h, http.MethodPost, "/runs/alice/battles", body)

			Convey("Then the report reaches the service and coin and index are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"upgrade_coin":null`)
				So(w.Body.String(), ShouldContainSubstring, `"battle_ghost_index":2`)
				So(deps.report.GradeAndBoard.Grade, ShouldEqual, 3)
				So(len(deps.report.Ghosts), ShouldEqual, 3)
				So(deps.report.Ghosts[1].Status, ShouldEqual, ghost.StatusRetired)
				So(deps.report.Ghosts[1].FinalTurn, ShouldEqual, 4)
			})
		})

		Convey("When the turn limit is exceeded", func() {
			deps.runErr = fmt.Errorf("wrapped: %w", run.ErrMaxTurnExceeded)
			w := serve(h, http.MethodPost, "/runs/alice/battles", `{}`)

			Convey("Then it returns 409 settlement_aborted", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "settlement_aborted")
			})
		})

		Convey("When no ghost can be selected", func() {
			deps.runErr = run.ErrGhostSelection
			w := serve(h, http.MethodPost, "/runs/alice/battles", `{}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When there is no run", func() {
			deps.runErr = service.ErrNoRun
			w := serve(h, http.MethodPost, "/runs/alice/battles", `{}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the run is already finished", func() {
			deps.runErr = fmt.Errorf("wrapped: %w", service.ErrRunFinishing)
			w := serve(h, http.MethodPost, "/runs/alice/battles", `{}`)

			Convey("Then it returns 409 run_finishing", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "run_finishing")
			})
		})

		Convey("When the body is not JSON", func() {
			w := serve(h, http.MethodPost, "/runs/alice/battles", `nope`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a ghost status is unknown", func() {
			w := serve(h, http.MethodPost, "/runs/alice/battles", `{"ghost_states":[{"status":"zombie"}]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRunsHandler_FinishRun(t *testing.T) {
	Convey("Given the finish endpoint", t, func() {
		deps := &mockDependencies{finish: service.FinishResult{RunID: "run-1"}}
		h := api.NewServer(deps, &mockStatsProvider{}, 100).Routes()

		Convey("When a valid place is posted", func() {
			w := serve(h, http.MethodPost, "/runs/alice/finish", `{"place":2}`)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"accepted"`)
				So(deps.place, ShouldEqual, 2)
			})
		})

		Convey("When the run was already queued", func() {
			deps.finish.Duplicate = true
			w := serve(h, http.MethodPost, "/runs/alice/finish", `{"place":2}`)

			Convey("Then it is reported as a duplicate", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
			})
		})

		Convey("When the place is out of range or missing", func() {
			So(serve(h, http.MethodPost, "/runs/alice/finish", `{"place":0}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodPost, "/runs/alice/finish", `{"place":5}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodPost, "/runs/alice/finish", `{}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the queue is full", func() {
			deps.runErr = service.ErrBackpressure
			w := serve(h, http.MethodPost, "/runs/alice/finish", `{"place":1}`)

			Convey("Then it returns 429", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(errorCode(w), ShouldEqual, "backpressure")
			})
		})

		Convey("When there is no run", func() {
			deps.runErr = service.ErrNoRun
			So(serve(h, http.MethodPost, "/runs/alice/finish", `{"place":1}`).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestLeaderboardHandler_HandleGetLeaderboard(t *testing.T) {
	Convey("Given a leaderboard handler", t, func() {
		deps := &mockDependencies{
			topN: []types.Entry{
				{Rank: 1, Account: "a", EP: 300},
				{Rank: 2, Account: "b", EP: 250},
				{Rank: 3, Account: "c", EP: 70},
			},
		}
		handler := api.NewLeaderboardHandler(deps, 2)

		Convey("When requesting top N entries", func() {
			w := httptest.NewRecorder()
			handler.HandleGetLeaderboard(w, httptest.NewRequest(http.MethodGet, "/leaderboard?limit=2", nil))

			Convey("Then it should return the top N entries", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var response []types.Entry
				So(json.NewDecoder(w.Body).Decode(&response), ShouldBeNil)
				So(len(response), ShouldEqual, 2)
				So(response[0].Account, ShouldEqual, "a")
				So(response[1].Account, ShouldEqual, "b")
			})
		})

		Convey("When no limit is specified", func() {
			w := httptest.NewRecorder()
			handler.HandleGetLeaderboard(w, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the limit is above the maximum", func() {
			w := httptest.NewRecorder()
			handler.HandleGetLeaderboard(w, httptest.NewRequest(http.MethodGet, "/leaderboard?limit=3", nil))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "limit_exceeded")
		})

		Convey("When the store fails", func() {
			deps.topNErr = fmt.Errorf("disk on fire")
			w := httptest.NewRecorder()
			handler.HandleGetLeaderboard(w, httptest.NewRequest(http.MethodGet, "/leaderboard?limit=1", nil))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestRankAndPlayerHandlers(t *testing.T) {
	Convey("Given the read endpoints", t, func() {
		deps := &mockDependencies{
			rank:   types.Entry{Rank: 101, Account: "zed", EP: 55, Surplus: true},
			player: model.PlayerRating{Account: "zed", EP: 55},
		}
		h := api.NewServer(deps, &mockStatsProvider{}, 100).Routes()

		Convey("When a surplus account is ranked", func() {
			w := serve(h, http.MethodGet, "/rank/zed", "")

			Convey("Then the surplus flag is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"surplus":true`)
				So(w.Body.String(), ShouldContainSubstring, `"rank":101`)
			})
		})

		Convey("When the account is untracked", func() {
			deps.rankErr = repository.ErrNotFound
			So(serve(h, http.MethodGet, "/rank/nobody", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a player is read", func() {
			w := serve(h, http.MethodGet, "/players/zed", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ep":55`)
		})

		Convey("When the service is stopped", func() {
			deps.playerErr = service.ErrNotStarted
			So(serve(h, http.MethodGet, "/players/zed", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestServer_WithService(t *testing.T) {
	Convey("Given the API backed by a running service", t, func() {
		svc := service.New(service.WithIDGenerator(func() string { return "run-x" }))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		h := api.NewServer(svc, svc, 100).Routes()

		Convey("When a run is started, fought and finished", func() {
			So(serve(h, http.MethodPost, "/runs/alice", "").Code, ShouldEqual, http.StatusCreated)
			So(serve(h, http.MethodPost, "/runs/alice/battles", `{"grade_and_board":{"grade":1}}`).Code, ShouldEqual, http.StatusOK)
			So(serve(h, http.MethodPost, "/runs/alice/finish", `{"place":1}`).Code, ShouldEqual, http.StatusAccepted)

			Convey("Then the rating and rank are eventually visible", func() {
				var w *httptest.ResponseRecorder
				deadline := time.Now().Add(time.Second)
				for {
					w = serve(h, http.MethodGet, "/rank/alice", "")
					if w.Code == http.StatusOK || time.Now().After(deadline) {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"ep":70`)
				So(serve(h, http.MethodGet, "/runs/alice", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
