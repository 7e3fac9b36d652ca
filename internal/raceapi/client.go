// Package raceapi is the typed HTTP client for the timing server, used by
// the marshal CLI and the sync coordinator.
package raceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fellside/timekeeper/internal/api"
)

var ErrNotFound = errors.New("not found")

// StatusError is returned for non-2xx responses other than 404, carrying the
// server's error message when it sent one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Online probes /healthz with a short deadline. Any failure means offline.
func (c *Client) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) Races(ctx context.Context, page, pageSize int) (api.RaceListResponse, error) {
	var out api.RaceListResponse
	err := c.do(ctx, http.MethodGet, "/api/races"+pageQuery(page, pageSize), nil, &out)
	return out, err
}

func (c *Client) Race(ctx context.Context, raceID int64, page, pageSize int) (api.RaceDetail, error) {
	var out api.RaceDetail
	path := fmt.Sprintf("/api/races/%d%s", raceID, pageQuery(page, pageSize))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) UpdateStartTime(ctx context.Context, raceID int64, startMillis int64) error {
	return c.do(ctx, http.MethodPatch, "/api/update-race", api.UpdateRaceRequest{
		RaceID:    raceID,
		Action:    api.ActionUpdateStartTime,
		StartTime: &startMillis,
	}, nil)
}

func (c *Client) UpdateFinishTime(ctx context.Context, raceID int64, finishMillis int64) error {
	return c.do(ctx, http.MethodPatch, "/api/update-race", api.UpdateRaceRequest{
		RaceID:     raceID,
		Action:     api.ActionUpdateFinishTime,
		FinishTime: &finishMillis,
	}, nil)
}

func (c *Client) SubmitResults(ctx context.Context, raceID int64, entries []api.SubmitEntry, submittedBy, checkpoint string) error {
	return c.do(ctx, http.MethodPatch, "/api/update-race", api.UpdateRaceRequest{
		RaceID:      raceID,
		Action:      api.ActionSubmitResults,
		Entries:     entries,
		SubmittedBy: submittedBy,
		Checkpoint:  checkpoint,
	}, nil)
}

func (c *Client) Conflicts(ctx context.Context, raceID int64) ([]api.ConflictView, error) {
	var out []api.ConflictView
	path := "/api/conflicts?raceId=" + strconv.FormatInt(raceID, 10)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) ResolveConflict(ctx context.Context, raceID int64, bib int, timeMillis int64) error {
	return c.do(ctx, http.MethodPost, "/api/resolve-conflict", api.ResolveRequest{
		RaceID:    raceID,
		BibNumber: bib,
		Time:      timeMillis,
	}, nil)
}

func (c *Client) RejectTimestamp(ctx context.Context, raceID int64, bib int, timeMillis int64) error {
	return c.do(ctx, http.MethodPost, "/api/reject-timestamp", api.ResolveRequest{
		RaceID:    raceID,
		BibNumber: bib,
		Time:      timeMillis,
	}, nil)
}

func (c *Client) DeleteRace(ctx context.Context, raceID int64) error {
	path := "/api/delete-race?raceId=" + strconv.FormatInt(raceID, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func pageQuery(page, pageSize int) string {
	if page <= 0 && pageSize <= 0 {
		return ""
	}
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	return "?" + q.Encode()
}
