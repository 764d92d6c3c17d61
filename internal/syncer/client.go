// Package syncer pushes newly created locations, snapshots, and stats to
// the external system of record. Delivery is at-least-once: transient
// failures keep an entry queued for the next drain, permanent failures
// drop it.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/velowatch/velowatch/internal/httpx"
)

var (
	// ErrTransient marks a push that may succeed later (network, 5xx).
	ErrTransient = errors.New("transient sync failure")

	// ErrPermanent marks a push the remote rejected (4xx); retrying the
	// same payload cannot help.
	ErrPermanent = errors.New("permanent sync failure")
)

// Report summarizes one drain run.
type Report struct {
	Pushed  int
	Retried int // transient failures, requeued
	Dropped int // permanent failures
}

// Client pushes single entries to the external REST API.
type Client struct {
	baseURL string
	httpCfg httpx.Config
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a Client posting to baseURL + "/<kind>/".
func NewClient(client *http.Client, baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: httpx.Config{
			Client: client,
			Backoff: httpx.BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: httpx.NewBreaker("sync"),
	}
}

// Push posts one entry. A nil return is an ack; otherwise the error wraps
// ErrTransient or ErrPermanent.
func (c *Client) Push(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrPermanent, e.Kind, err)
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost,
			fmt.Sprintf("%s/%s/", c.baseURL, e.Kind), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := httpx.Do(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		if errors.Is(err, httpx.ErrClientError) {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Drain pushes everything currently queued. Outcomes are per entry: a
// failed push never blocks the rest of the batch.
func (c *Client) Drain(ctx context.Context, q *Queue) Report {
	var report Report
	var retry []Entry

	for _, e := range q.TakeAll() {
		err := c.Push(ctx, e)
		switch {
		case err == nil:
			report.Pushed++
		case errors.Is(err, ErrPermanent):
			report.Dropped++
			log.Printf("sync: dropped %s entry: %v", e.Kind, err)
		default:
			report.Retried++
			retry = append(retry, e)
		}
	}

	q.Requeue(retry)
	if report.Retried > 0 {
		log.Printf("sync: %d entries requeued for next drain", report.Retried)
	}
	return report
}
