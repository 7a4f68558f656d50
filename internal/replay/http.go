package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/ghostrun/internal/app"
	"github.com/okian/ghostrun/internal/domain/rating"
	"github.com/okian/ghostrun/internal/domain/run"
	"github.com/okian/ghostrun/internal/domain/types"
)

// HTTPDriver replays against a running service over its HTTP API.
type HTTPDriver struct {
	baseURL string
	client  *http.Client
	limit   int
}

// NewHTTPDriver returns a driver for the service at baseURL. limit is the
// leaderboard size fetched at the end of the replay.
func NewHTTPDriver(baseURL string, timeout time.Duration, limit int) *HTTPDriver {
	if limit < 1 {
		limit = 100
	}
	return &HTTPDriver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limit:   limit,
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type battleBody struct {
	GradeAndBoard run.GradeAndBoard `json:"grade_and_board"`
	GhostStates   any               `json:"ghost_states,omitempty"`
}

type battleReply struct {
	BattleGhostIndex uint8 `json:"battle_ghost_index"`
}

type finishReply struct {
	Duplicate bool `json:"duplicate"`
}

type playerReply struct {
	EP uint16 `json:"ep"`
}

// do sends a request and decodes a 2xx JSON reply into out when set.
// Error replies are mapped back to the service sentinels.
func (d *HTTPDriver) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var ae apiError
		_ = json.Unmarshal(data, &ae)
		return resp.StatusCode, mapStatus(resp.StatusCode, path, ae)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func mapStatus(status int, path string, ae apiError) error {
	switch status {
	case http.StatusConflict:
		if ae.Code == "run_finishing" {
			return fmt.Errorf("%w: %s", service.ErrRunFinishing, ae.Message)
		}
		if strings.Contains(ae.Message, run.ErrMaxTurnExceeded.Error()) {
			return fmt.Errorf("%w: %s", run.ErrMaxTurnExceeded, ae.Message)
		}
		return fmt.Errorf("%w: %s", run.ErrGhostSelection, ae.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", service.ErrNoRun, ae.Message)
	case http.StatusBadRequest:
		if strings.HasSuffix(path, "/finish") {
			return fmt.Errorf("%w: %s", rating.ErrInvalidPlacement, ae.Message)
		}
		return fmt.Errorf("%w: %s", service.ErrInvalidRoster, ae.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", service.ErrBackpressure, ae.Message)
	default:
		return fmt.Errorf("%w: %d %s %s", ErrUnexpectedStatus, status, ae.Code, ae.Message)
	}
}

func runPath(account string) string {
	return "/runs/" + url.PathEscape(account)
}

func (d *HTTPDriver) StartRun(ctx context.Context, account string) error {
	_, err := d.do(ctx, http.MethodPost, runPath(account), nil, nil)
	return err
}

func (d *HTTPDriver) FinishBattle(ctx context.Context, account string, report service.BattleReport) (uint8, error) {
	body := battleBody{GradeAndBoard: report.GradeAndBoard}
	if report.Ghosts != nil {
		body.GhostStates = report.Ghosts
	}
	var reply battleReply
	_, err := d.do(ctx, http.MethodPost, runPath(account)+"/battles", body, &reply)
	return reply.BattleGhostIndex, err
}

func (d *HTTPDriver) FinishRun(ctx context.Context, account string, place rating.Placement) (bool, error) {
	var reply finishReply
	_, err := d.do(ctx, http.MethodPost, runPath(account)+"/finish", map[string]int{"place": int(place)}, &reply)
	return reply.Duplicate, err
}

func (d *HTTPDriver) AbandonRun(ctx context.Context, account string) error {
	_, err := d.do(ctx, http.MethodDelete, runPath(account), nil, nil)
	return err
}

func (d *HTTPDriver) Settled(ctx context.Context, account string) (bool, error) {
	status, err := d.do(ctx, http.MethodGet, runPath(account), nil, nil)
	if status == http.StatusNotFound {
		return true, nil
	}
	return false, err
}

func (d *HTTPDriver) Player(ctx context.Context, account string) (uint16, error) {
	var reply playerReply
	_, err := d.do(ctx, http.MethodGet, "/players/"+url.PathEscape(account), nil, &reply)
	return reply.EP, err
}

func (d *HTTPDriver) Leaderboard(ctx context.Context) ([]types.Entry, error) {
	var entries []types.Entry
	_, err := d.do(ctx, http.MethodGet, "/leaderboard?limit="+strconv.Itoa(d.limit), nil, &entries)
	return entries, err
}

func (d *HTTPDriver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
