package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"churncli/internal/config"
	apperrors "churncli/internal/errors"
	"churncli/internal/infrastructure"
)

const (
	rosterPath     = "/api/v2/group/student/index"
	attendancePath = "/api/v1/stats/default/attendance"

	// response bodies above this size are rejected
	maxBodyBytes = 8 << 20
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	Endpoint string
	Status   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lms %s returned status %d", e.Endpoint, e.Status)
}

// RosterEntry is one student of a group roster.
type RosterEntry struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
}

// Lesson is one attendance mark.
type Lesson struct {
	Status string `json:"status"`
}

// Client is a rate limited LMS API client.
type Client struct {
	baseURL   string
	userAgent string
	creds     config.LMSCredentials
	http      *http.Client
	limiter   *rate.Limiter
	metrics   *infrastructure.PipelineMetrics
	logger    *slog.Logger
}

// NewClient creates a client for cfg. Metrics may be nil.
func NewClient(cfg config.LMSConfig, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		creds:     cfg.Credentials,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   metrics,
		logger:    logger,
	}
}

// Roster returns the students of group groupID.
func (c *Client) Roster(ctx context.Context, groupID int64) ([]RosterEntry, error) {
	params := url.Values{"groupId": {strconv.FormatInt(groupID, 10)}}
	body, err := c.get(ctx, rosterPath, params)
	if err != nil {
		return nil, err
	}
	return ParseRoster(body)
}

// Attendance returns the number of lessons of group groupID at which
// student studentID was present.
func (c *Client) Attendance(ctx context.Context, groupID, studentID int64) (int, error) {
	params := url.Values{
		"group":      {strconv.FormatInt(groupID, 10)},
		"students[]": {strconv.FormatInt(studentID, 10)},
	}
	body, err := c.get(ctx, attendancePath, params)
	if err != nil {
		return 0, err
	}
	lessons, err := ParseAttendance(body)
	if err != nil {
		return 0, err
	}
	return CountPresent(lessons), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordLMSRequest(ctx, path, 0, time.Since(start))
		return nil, apperrors.NewNetworkError("lms request failed", err).WithContext("endpoint", path)
	}
	defer resp.Body.Close()
	c.metrics.RecordLMSRequest(ctx, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Endpoint: path, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewNetworkError("read lms response", err).WithContext("endpoint", path)
	}
	c.logger.DebugContext(ctx, "lms request completed",
		slog.String("endpoint", path),
		slog.Duration("duration", time.Since(start)))
	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for _, ck := range []*http.Cookie{
		{Name: "_backendMainSessionId", Value: c.creds.BackendSessionID},
		{Name: "accessToken", Value: c.creds.AccessToken},
		{Name: "SERVERID", Value: c.creds.ServerID},
		{Name: "createdTimestamp", Value: c.creds.CreatedTimestamp},
		{Name: "userId", Value: c.creds.UserID},
	} {
		if ck.Value != "" {
			req.AddCookie(ck)
		}
	}
}

type rosterResponse struct {
	Items []RosterEntry `json:"items"`
	Data  struct {
		Items []RosterEntry `json:"items"`
	} `json:"data"`
}

// ParseRoster decodes a roster response. The list sits at items or at
// data.items depending on the API version.
func ParseRoster(body []byte) ([]RosterEntry, error) {
	var r rosterResponse
	if err := json.Unmarshal(body, &r); err != nil {
		// data is sometimes a list rather than an object
		var alt struct {
			Items []RosterEntry `json:"items"`
		}
		if err2 := json.Unmarshal(body, &alt); err2 != nil {
			return nil, apperrors.NewParsingError("decode roster", err)
		}
		return alt.Items, nil
	}
	if len(r.Items) > 0 {
		return r.Items, nil
	}
	return r.Data.Items, nil
}

type attendanceResponse struct {
	Data []struct {
		Attendance []Lesson `json:"attendance"`
	} `json:"data"`
}

// ParseAttendance decodes the lessons of the first student in an
// attendance response.
func ParseAttendance(body []byte) ([]Lesson, error) {
	var r attendanceResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, apperrors.NewParsingError("decode attendance", err)
	}
	if len(r.Data) == 0 {
		return nil, nil
	}
	return r.Data[0].Attendance, nil
}

// CountPresent counts lessons marked present.
func CountPresent(lessons []Lesson) int {
	n := 0
	for _, l := range lessons {
		if l.Status == "present" {
			n++
		}
	}
	return n
}

// MatchStudent returns the id of the first roster entry whose lower-cased
// name contains, or is contained in, fullName. It returns 0 when nothing
// matches.
func MatchStudent(roster []RosterEntry, fullName string) int64 {
	want := strings.ToLower(strings.TrimSpace(fullName))
	for _, s := range roster {
		got := strings.ToLower(strings.TrimSpace(s.FullName))
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return s.ID
		}
	}
	return 0
}
