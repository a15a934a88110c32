// Package client is a Go SDK for talking to a single chronos node:
// create, inspect, and delete timers, and ping its liveness endpoint.
// It hides HTTP/JSON plumbing behind typed calls; chronosctl is its
// only consumer inside this repo, but it's exported so other Go
// programs can embed a chronos client without shelling out to the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to exactly one chronos node. It never implements
// replica selection or fan-out itself — that is entirely the node's
// job; the client only issues the HTTP verbs of spec.md §4.6.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client targeting baseURL (e.g. "http://localhost:8080").
// A zero timeout defaults to 10s; a network call without a timeout has
// no place in a client for a distributed system.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateRequest is the subset of spec.md §4.1's wire shape a caller
// supplies to create a timer; Client fills in nothing else.
type CreateRequest struct {
	IntervalMS        int64
	RepeatForMS       int64
	StartTimeDeltaMS  *int64
	CallbackURI       string
	CallbackOpaque    string
	ReplicationFactor int
	Replicas          []string
}

type wireTiming struct {
	Interval         int64  `json:"interval"`
	RepeatFor        int64  `json:"repeat-for"`
	StartTimeDeltaMS *int64 `json:"start-time-delta,omitempty"`
}

type wireHTTP struct {
	URI    string `json:"uri"`
	Opaque string `json:"opaque"`
}

type wireCallback struct {
	HTTP wireHTTP `json:"http"`
}

type wireReliability struct {
	ReplicationFactor int      `json:"replication-factor,omitempty"`
	Replicas          []string `json:"replicas,omitempty"`
}

type wireRequest struct {
	Timing      wireTiming      `json:"timing"`
	Callback    wireCallback    `json:"callback"`
	Reliability wireReliability `json:"reliability"`
}

// Create POSTs a new timer and returns the canonical URL the server
// handed back in the Location header.
func (c *Client) Create(ctx context.Context, req CreateRequest) (location string, err error) {
	w := wireRequest{
		Timing: wireTiming{
			Interval:         req.IntervalMS,
			RepeatFor:        req.RepeatForMS,
			StartTimeDeltaMS: req.StartTimeDeltaMS,
		},
		Callback: wireCallback{HTTP: wireHTTP{URI: req.CallbackURI, Opaque: req.CallbackOpaque}},
		Reliability: wireReliability{
			ReplicationFactor: req.ReplicationFactor,
			Replicas:          req.Replicas,
		},
	}
	body, err := json.Marshal(w)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/timers", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("POST /timers: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return resp.Header.Get("Location"), nil
}

// Timer is the subset of a timer's JSON form a client cares about
// reading back.
type Timer struct {
	Timing struct {
		IntervalMS  int64 `json:"interval"`
		RepeatForMS int64 `json:"repeat-for"`
	} `json:"timing"`
	Callback struct {
		HTTP struct {
			URI    string `json:"uri"`
			Opaque string `json:"opaque"`
		} `json:"http"`
	} `json:"callback"`
	Reliability struct {
		Replicas []string `json:"replicas"`
	} `json:"reliability"`
	SequenceNumber uint64 `json:"sequence-number"`
	Tombstone      bool   `json:"tombstone"`
}

// Get fetches the current state of the timer named by hexID.
func (c *Client) Get(ctx context.Context, hexID string) (*Timer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/timers/%s", c.baseURL, hexID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET /timers/%s: %w", hexID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return nil, &NotFoundError{Hint: string(body)}
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var t Timer
	return &t, json.NewDecoder(resp.Body).Decode(&t)
}

// Delete tombstones the timer named by hexID. Deleting an id that no
// longer exists is not an error.
func (c *Client) Delete(ctx context.Context, hexID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/timers/%s", c.baseURL, hexID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE /timers/%s: %w", hexID, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Ping hits GET /ping and returns an error unless the node answers with
// a 2xx status; the response body is not checked.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET /ping: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// NotFoundError is returned by Get when the node doesn't hold the
// requested timer; Hint, if non-empty, is the server's suggestion of
// which replica to retry against.
type NotFoundError struct {
	Hint string
}

func (e *NotFoundError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("timer not found: %s", e.Hint)
	}
	return "timer not found"
}

// APIError carries the HTTP status and body text of a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return &APIError{Status: resp.StatusCode, Message: string(body)}
}
