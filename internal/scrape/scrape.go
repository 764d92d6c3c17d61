// Package scrape fetches the public station-map page and extracts the
// availability table into raw rows for the ingestor.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/html"

	"github.com/velowatch/velowatch/internal/bikes"
	"github.com/velowatch/velowatch/internal/common"
	"github.com/velowatch/velowatch/internal/httpx"
)

// ErrNoTable is returned when the fetched page carries no station table.
var ErrNoTable = errors.New("no station table in page")

// Client fetches raw rows from the station-map page. It implements
// bikes.Fetcher.
type Client struct {
	url     string
	httpCfg httpx.Config
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a Client for the given page URL.
func NewClient(client *http.Client, url string) *Client {
	return &Client{
		url: url,
		httpCfg: httpx.Config{
			Client: client,
			Backoff: httpx.BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: httpx.NewBreaker("scrape"),
	}
}

// FetchRawRows fetches the page and extracts the station table.
func (c *Client) FetchRawRows(ctx context.Context) ([]bikes.RawRow, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.url, nil)
	}

	resp, err := httpx.Do(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("fetch station page: %w", err)
	}
	defer resp.Body.Close()

	return ParseStationTable(resp.Body)
}

// ParseStationTable extracts rows from the first <table> in the document.
// Expected cell order: location, bikes, all stands, free stands,
// coordinates. Rows with a different shape (headers, separators) are
// dropped here; content validation is the ingestor's job.
func ParseStationTable(r io.Reader) ([]bikes.RawRow, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse station page: %w", err)
	}

	table := findFirst(doc, "table")
	if table == nil {
		return nil, ErrNoTable
	}

	var rows []bikes.RawRow
	for _, tr := range findAll(table, "tr") {
		cells := cellTexts(tr)
		if len(cells) != 5 {
			continue
		}
		rows = append(rows, bikes.RawRow{
			LocationName: cells[0],
			AvailBikes:   cells[1],
			TotalStands:  cells[2],
			FreeStands:   cells[3],
			Coordinates:  cells[4],
		})
	}
	return rows, nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}

// cellTexts returns the collapsed text of each non-empty <td> in a row.
func cellTexts(tr *html.Node) []string {
	var cells []string
	for _, td := range findAll(tr, "td") {
		text := common.CollapseSpaces(nodeText(td))
		if text == "" {
			continue
		}
		cells = append(cells, text)
	}
	return cells
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(" ")
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
