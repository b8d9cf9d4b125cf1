package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/engine"
	"github.com/ftl/cellbroadcast/geo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type submission struct {
	trigger bool
	slot    int
	pdu     []byte
}

type fakeEngine struct {
	mu          sync.Mutex
	submissions []submission
	areaInfo    map[int]string
	err         error
}

func (e *fakeEngine) SubmitRawMessage(slot int, pdu []byte) error {
	return e.submit(false, slot, pdu)
}

func (e *fakeEngine) SubmitGeofenceTrigger(slot int, pdu []byte) error {
	return e.submit(true, slot, pdu)
}

func (e *fakeEngine) submit(trigger bool, slot int, pdu []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.submissions = append(e.submissions, submission{trigger: trigger, slot: slot, pdu: pdu})
	return nil
}

func (e *fakeEngine) AreaInfo(slot int) string {
	return e.areaInfo[slot]
}

type fakeHistory struct {
	records []cb.Record
	since   time.Time
	limit   int
	err     error
}

func (h *fakeHistory) Recent(_ context.Context, since time.Time, limit int) ([]cb.Record, error) {
	h.since = since
	h.limit = limit
	return h.records, h.err
}

func newTestServer(t *testing.T, e Engine, h History) *Server {
	t.Helper()
	server, err := New(Config{
		Engine:  e,
		History: h,
		Slots:   2,
		Now:     func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return server
}

func do(server *Server, method, path, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	return recorder
}

func TestNew_NoEngine(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, &fakeEngine{}, nil)

	response := do(server, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, response.Code)
	assert.JSONEq(t, `{"status":"ok"}`, response.Body.String())
}

func TestGetAreaInfo(t *testing.T) {
	server := newTestServer(t, &fakeEngine{areaInfo: map[int]string{1: "Downtown"}}, nil)
	tt := []struct {
		path     string
		code     int
		expected string
	}{
		{"/v1/slots/0/area-info", http.StatusOK, `{"slot":0,"areaInfo":""}`},
		{"/v1/slots/1/area-info", http.StatusOK, `{"slot":1,"areaInfo":"Downtown"}`},
		{"/v1/slots/2/area-info", http.StatusNotFound, `{"error":"unknown slot 2"}`},
		{"/v1/slots/x/area-info", http.StatusNotFound, `{"error":"unknown slot x"}`},
	}
	for _, tc := range tt {
		t.Run(tc.path, func(t *testing.T) {
			response := do(server, http.MethodGet, tc.path, "")

			assert.Equal(t, tc.code, response.Code)
			assert.JSONEq(t, tc.expected, response.Body.String())
		})
	}
}

func TestSubmitPDU(t *testing.T) {
	tt := []struct {
		desc     string
		path     string
		body     string
		err      error
		code     int
		expected []submission
	}{
		{
			desc:     "raw message",
			path:     "/v1/slots/1/pdus",
			body:     `{"pdu":"C0A5 002A 0F11"}`,
			code:     http.StatusAccepted,
			expected: []submission{{slot: 1, pdu: []byte{0xC0, 0xA5, 0x00, 0x2A, 0x0F, 0x11}}},
		},
		{
			desc:     "trigger",
			path:     "/v1/slots/0/triggers",
			body:     `{"pdu":"011130"}`,
			code:     http.StatusAccepted,
			expected: []submission{{trigger: true, slot: 0, pdu: []byte{0x01, 0x11, 0x30}}},
		},
		{
			desc: "no hex",
			path: "/v1/slots/0/pdus",
			body: `{"pdu":"xyz"}`,
			code: http.StatusBadRequest,
		},
		{
			desc: "empty",
			path: "/v1/slots/0/pdus",
			body: `{"pdu":""}`,
			code: http.StatusBadRequest,
		},
		{
			desc: "no json",
			path: "/v1/slots/0/pdus",
			body: `C0A5`,
			code: http.StatusBadRequest,
		},
		{
			desc: "unknown slot",
			path: "/v1/slots/5/pdus",
			body: `{"pdu":"C0A5"}`,
			code: http.StatusNotFound,
		},
		{
			desc: "engine closed",
			path: "/v1/slots/0/pdus",
			body: `{"pdu":"C0A5"}`,
			err:  engine.ErrClosed,
			code: http.StatusServiceUnavailable,
		},
		{
			desc: "engine failure",
			path: "/v1/slots/0/pdus",
			body: `{"pdu":"C0A5"}`,
			err:  errors.New("failure"),
			code: http.StatusInternalServerError,
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			e := &fakeEngine{err: tc.err}
			server := newTestServer(t, e, nil)

			response := do(server, http.MethodPost, tc.path, tc.body)

			assert.Equal(t, tc.code, response.Code)
			assert.Equal(t, tc.expected, e.submissions)
		})
	}
}

func TestListMessages(t *testing.T) {
	history := &fakeHistory{records: []cb.Record{
		{
			ID: 2,
			Message: cb.Message{
				MessageIdentifier: 0x1112,
				SerialNumber:      0x3001,
				ServiceCategory:   0x1112,
				Location:          cell.Location{PLMN: "26201", LAC: 0x1234, CID: cell.Unknown},
				Language:          "en",
				Body:              "Evacuate",
				Geometries:        []geo.Polygon{{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}, {Lat: 5, Lng: 6}}},
				MaximumWaitTime:   30 * time.Second,
				SlotIndex:         1,
				ReceivedAt:        testNow.Add(-time.Minute),
			},
			Delivered: true,
		},
	}}
	server := newTestServer(t, &fakeEngine{}, history)

	response := do(server, http.MethodGet, "/v1/messages?since=2h&limit=5000", "")

	require.Equal(t, http.StatusOK, response.Code)
	assert.Equal(t, testNow.Add(-2*time.Hour), history.since)
	assert.Equal(t, maxRecentLimit, history.limit)
	var actual []MessageResponse
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &actual))
	require.Len(t, actual, 1)
	assert.Equal(t, "Evacuate", actual[0].Body)
	assert.Equal(t, "30s", actual[0].MaximumWaitTime)
	assert.Equal(t, -1, actual[0].CID)
	assert.Equal(t, [][][2]float64{{{1, 2}, {3, 4}, {5, 6}}}, actual[0].Geometries)
	assert.True(t, actual[0].Delivered)
}

func TestListMessages_Parameters(t *testing.T) {
	tt := []struct {
		query string
		code  int
		since time.Time
		limit int
	}{
		{"", http.StatusOK, testNow.Add(-24 * time.Hour), defaultRecentLimit},
		{"?since=2024-02-29T12:00:00Z&limit=10", http.StatusOK, testNow.Add(-24 * time.Hour), 10},
		{"?since=yesterday", http.StatusBadRequest, time.Time{}, 0},
		{"?since=-1h", http.StatusBadRequest, time.Time{}, 0},
		{"?limit=0", http.StatusBadRequest, time.Time{}, 0},
	}
	for _, tc := range tt {
		t.Run(tc.query, func(t *testing.T) {
			history := &fakeHistory{}
			server := newTestServer(t, &fakeEngine{}, history)

			response := do(server, http.MethodGet, "/v1/messages"+tc.query, "")

			assert.Equal(t, tc.code, response.Code)
			assert.True(t, tc.since.Equal(history.since), "since %s", history.since)
			assert.Equal(t, tc.limit, history.limit)
		})
	}
}

func TestListMessages_Failures(t *testing.T) {
	server := newTestServer(t, &fakeEngine{}, nil)
	response := do(server, http.MethodGet, "/v1/messages", "")
	assert.Equal(t, http.StatusNotImplemented, response.Code)

	server = newTestServer(t, &fakeEngine{}, &fakeHistory{err: errors.New("disk full")})
	response = do(server, http.MethodGet, "/v1/messages", "")
	assert.Equal(t, http.StatusInternalServerError, response.Code)
}
