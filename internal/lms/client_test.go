package lms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churncli/internal/config"
)

func testConfig(baseURL string) config.LMSConfig {
	return config.LMSConfig{
		BaseURL:           baseURL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             10,
		Workers:           1,
		UserAgent:         "churnctl-test",
		Credentials: config.LMSCredentials{
			AccessToken:      "token-1",
			BackendSessionID: "sess-1",
			ServerID:         "srv-1",
			CreatedTimestamp: "1700000000",
			UserID:           "42",
		},
	}
}

func TestClientRoster(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []RosterEntry
	}{
		{
			name: "top level items",
			body: `{"items":[{"id":7,"fullName":"Іван Петренко"}]}`,
			want: []RosterEntry{{ID: 7, FullName: "Іван Петренко"}},
		},
		{
			name: "nested data items",
			body: `{"data":{"items":[{"id":8,"fullName":"Олена Шевчук"}]}}`,
			want: []RosterEntry{{ID: 8, FullName: "Олена Шевчук"}},
		},
		{
			name: "data as list",
			body: `{"data":[],"items":[]}`,
			want: []RosterEntry{},
		},
		{
			name: "empty",
			body: `{}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, rosterPath, r.URL.Path)
				assert.Equal(t, "215221", r.URL.Query().Get("groupId"))
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := NewClient(testConfig(srv.URL), nil, nil).Roster(context.Background(), 215221)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "churnctl-test", r.Header.Get("User-Agent"))
		for name, want := range map[string]string{
			"_backendMainSessionId": "sess-1",
			"accessToken":           "token-1",
			"SERVERID":              "srv-1",
			"createdTimestamp":      "1700000000",
			"userId":                "42",
		} {
			c, err := r.Cookie(name)
			if assert.NoError(t, err, name) {
				assert.Equal(t, want, c.Value)
			}
		}
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL), nil, nil).Roster(context.Background(), 1)
	require.NoError(t, err)
}

func TestClientAttendance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, attendancePath, r.URL.Path)
		assert.Equal(t, "11", r.URL.Query().Get("group"))
		assert.Equal(t, []string{"7"}, r.URL.Query()["students[]"])
		w.Write([]byte(`{"data":[{"attendance":[
			{"status":"present"},{"status":"absent"},{"status":"present"},{"status":"Present"}
		]}]}`))
	}))
	defer srv.Close()

	n, err := NewClient(testConfig(srv.URL), nil, nil).Attendance(context.Background(), 11, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("groupId") == "1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()
	c := NewClient(testConfig(srv.URL), nil, nil)

	_, err := c.Roster(context.Background(), 1)
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusForbidden, status.Status)

	_, err = c.Roster(context.Background(), 2)
	assert.Error(t, err)
	assert.False(t, errors.As(err, &status))
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(testConfig(url), nil, nil).Roster(context.Background(), 1)
	assert.Error(t, err)
}

func TestClientRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RequestsPerSecond = 20
	cfg.Burst = 1
	c := NewClient(cfg, nil, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Roster(context.Background(), int64(i))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestMatchStudent(t *testing.T) {
	roster := []RosterEntry{
		{ID: 1, FullName: "Петренко Іван Олегович"},
		{ID: 2, FullName: "Шевчук Олена"},
		{ID: 3, FullName: "Шевчук Олена"},
	}
	tests := []struct {
		name string
		want int64
	}{
		{"Петренко Іван", 1},
		{"  шевчук олена ", 2},
		{"Шевчук Олена Петрівна", 2},
		{"Лисенко Марко", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchStudent(roster, tt.name))
		})
	}
}

func TestGroupIDFromName(t *testing.T) {
	tests := []struct {
		name   string
		want   int64
		wantOK bool
	}{
		{"215221_Умань_СБ_10:00 Геймдизайн", 215221, true},
		{"42", 42, true},
		{"Умань 215221", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GroupIDFromName(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
