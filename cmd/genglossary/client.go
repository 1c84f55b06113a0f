package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// httpClient is the thin wrapper cmd/genglossary uses to drive a running
// `genglossary serve` instance over --addr instead of opening the
// project database directly. It only ever shells out to the endpoints
// documented in spec §4.8/§6 — no client-side business logic lives here.
type httpClient struct {
	base string
}

func newHTTPClient(addr string) *httpClient {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &httpClient{base: base}
}

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, errBody.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *httpClient) startRun(ctx context.Context, project, scope string) (map[string]any, error) {
	var run map[string]any
	err := c.do(ctx, http.MethodPost, "/projects/"+project+"/runs", startRunRequest{Scope: scope, TriggeredBy: "cli"}, &run)
	return run, err
}

func (c *httpClient) cancelRun(ctx context.Context, project string, runID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/projects/%s/runs/%d", project, runID), nil, nil)
}

func (c *httpClient) currentRun(ctx context.Context, project string) (map[string]any, error) {
	var run map[string]any
	err := c.do(ctx, http.MethodGet, "/projects/"+project+"/runs/current", nil, &run)
	return run, err
}

// streamLogs reads the run's SSE endpoint and calls onLine for each "data:"
// payload until the stream closes or ctx is cancelled.
func (c *httpClient) streamLogs(ctx context.Context, project string, runID int64, onLine func(event string, data string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/projects/%s/runs/%d/logs", c.base, project, runID), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			onLine(event, strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}

type startRunRequest struct {
	Scope       string `json:"scope"`
	TriggeredBy string `json:"triggered_by"`
}
