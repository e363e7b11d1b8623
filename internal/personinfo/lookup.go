// Package personinfo looks up who a tracked face belongs to and polls
// until the answer is ready.
package personinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Lookup statuses.
const (
	StatusScraping  = "scraping"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Info is what is known about a person so far.
type Info struct {
	PersonID string `json:"person_id"`
	Status   string `json:"status"`
	Summary  string `json:"summary"`
	FullName string `json:"full_name"`
}

// Done reports whether polling can stop.
func (i Info) Done() bool {
	return i.Status == StatusCompleted || i.Status == StatusError
}

// Scraping is the placeholder shown while a lookup is in progress.
func Scraping(personID string) Info {
	return Info{PersonID: personID, Status: StatusScraping, Summary: "Scraping..."}
}

// Lookup fetches the current state of a person's search.
type Lookup interface {
	Fetch(ctx context.Context, personID, imageFile string) (Info, error)
}

// searchRow is one row of the face search results.
type searchRow struct {
	FullName      string `json:"full_name"`
	TextToDisplay string `json:"text_to_display"`
}

// HTTPLookup queries a JSON face search endpoint.
type HTTPLookup struct {
	baseURL string
	http    *http.Client
}

// NewHTTPLookup returns a lookup against baseURL.
func NewHTTPLookup(baseURL string, timeout time.Duration) *HTTPLookup {
	return &HTTPLookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch asks for the search row matching imageFile. A missing row, or one
// without display text yet, means the search is still running.
func (l *HTTPLookup) Fetch(ctx context.Context, personID, imageFile string) (Info, error) {
	u := l.baseURL + "/face-searches?image=" + url.QueryEscape(imageFile)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Info{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("query face search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Scraping(personID), nil
	}
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("face search status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Info{}, fmt.Errorf("read face search: %w", err)
	}
	row, found, err := decodeRow(data)
	if err != nil {
		return Info{}, err
	}
	return rowInfo(personID, row, found), nil
}

// decodeRow accepts a single object, an array of rows, or null.
func decodeRow(data []byte) (searchRow, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return searchRow{}, false, nil
	}

	if data[0] == '[' {
		var rows []searchRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return searchRow{}, false, fmt.Errorf("decode face search: %w", err)
		}
		if len(rows) == 0 {
			return searchRow{}, false, nil
		}
		return rows[0], true, nil
	}

	var row searchRow
	if err := json.Unmarshal(data, &row); err != nil {
		return searchRow{}, false, fmt.Errorf("decode face search: %w", err)
	}
	return row, true, nil
}

func rowInfo(personID string, row searchRow, found bool) Info {
	if !found {
		return Scraping(personID)
	}
	if strings.TrimSpace(row.TextToDisplay) == "" {
		info := Scraping(personID)
		info.Summary = "Scraping data..."
		info.FullName = row.FullName
		if info.FullName == "" {
			info.FullName = "Scraping..."
		}
		return info
	}
	name := row.FullName
	if name == "" {
		name = "Unknown"
	}
	return Info{PersonID: personID, Status: StatusCompleted, Summary: row.TextToDisplay, FullName: name}
}
