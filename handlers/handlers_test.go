package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/statuswatch/status-monitor-backend/middleware"
	"github.com/statuswatch/status-monitor-backend/monitor"
	"github.com/statuswatch/status-monitor-backend/types"
)

// MockMonitor is a mock for MonitorInterface
type MockMonitor struct {
	mock.Mock
}

// Start mocks the Start method
func (m *MockMonitor) Start(specs []monitor.SourceSpec) error {
	args := m.Called(specs)
	return args.Error(0)
}

// Stop mocks the Stop method
func (m *MockMonitor) Stop() {
	m.Called()
}

// Running mocks the Running method
func (m *MockMonitor) Running() bool {
	args := m.Called()
	return args.Bool(0)
}

// Health mocks the Health method
func (m *MockMonitor) Health() []types.SourceHealth {
	args := m.Called()
	return args.Get(0).([]types.SourceHealth)
}

// Sources mocks the Sources method
func (m *MockMonitor) Sources() []types.Source {
	args := m.Called()
	return args.Get(0).([]types.Source)
}

// MockEventLog is a mock for EventLogInterface
type MockEventLog struct {
	mock.Mock
}

// Recent mocks the Recent method
func (m *MockEventLog) Recent(n int) []types.ChangeEvent {
	args := m.Called(n)
	return args.Get(0).([]types.ChangeEvent)
}

// Len mocks the Len method
func (m *MockEventLog) Len() int {
	args := m.Called()
	return args.Int(0)
}

// Total mocks the Total method
func (m *MockEventLog) Total() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

// MockBus is a mock for BusInterface
type MockBus struct {
	mock.Mock
}

// SubscriberCount mocks the SubscriberCount method
func (m *MockBus) SubscriberCount() int {
	args := m.Called()
	return args.Int(0)
}

// Delivered mocks the Delivered method
func (m *MockBus) Delivered() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

// DroppedTotal mocks the DroppedTotal method
func (m *MockBus) DroppedTotal() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

func setupTestHandler(t *testing.T) (*Handler, *MockMonitor, *MockEventLog, *MockBus) {
	mockMonitor := &MockMonitor{}
	mockLog := &MockEventLog{}
	mockBus := &MockBus{}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	// Initialize middleware logger for tests
	middleware.Logger = logger

	handler := NewHandler(mockMonitor, mockLog, mockBus, Options{}, logger)

	return handler, mockMonitor, mockLog, mockBus
}

func TestHandleStartMonitor(t *testing.T) {
	handler, mockMonitor, _, _ := setupTestHandler(t)

	mockMonitor.On("Start", mock.Anything).Return(nil)
	mockMonitor.On("Sources").Return([]types.Source{
		{Name: "openai", URL: "https://status.openai.com/history.atom", Kind: types.KindFeed},
	})

	body := `{"sources":[{"name":"openai","url":"https://status.openai.com/history.atom"}]}`
	req := httptest.NewRequest("POST", "/api/start", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.HandleStartMonitor(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var response StartResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "started", response.Status)
	assert.Equal(t, 1, response.Sources)
}

func TestHandleStartMonitorEmptyBodyUsesDefaults(t *testing.T) {
	mockMonitor := &MockMonitor{}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	middleware.Logger = logger

	defaults := []monitor.SourceSpec{
		{Name: "openai", URL: "https://status.openai.com/history.atom"},
		{Name: "github", URL: "https://www.githubstatus.com/history.atom"},
	}
	handler := NewHandler(mockMonitor, &MockEventLog{}, &MockBus{}, Options{DefaultSpecs: defaults}, logger)

	mockMonitor.On("Start", mock.MatchedBy(func(specs []monitor.SourceSpec) bool {
		return len(specs) == 2 && specs[0].Name == "openai"
	})).Return(nil)
	mockMonitor.On("Sources").Return([]types.Source{
		{Name: "openai"}, {Name: "github"},
	})

	req := httptest.NewRequest("POST", "/api/start", nil)
	w := httptest.NewRecorder()

	handler.HandleStartMonitor(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response StartResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "started", response.Status)
	assert.Equal(t, 2, response.Sources)
	mockMonitor.AssertExpectations(t)
}

func TestHandleStartMonitorInvalidSource(t *testing.T) {
	handler, mockMonitor, _, _ := setupTestHandler(t)

	mockMonitor.On("Start", mock.Anything).Return(&monitor.ConfigError{
		Field:  "url",
		Value:  "ftp://example.com/feed",
		Reason: "scheme must be http or https",
	})

	body := `{"sources":[{"url":"ftp://example.com/feed"}]}`
	req := httptest.NewRequest("POST", "/api/start", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.HandleStartMonitor(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response middleware.APIError
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, middleware.ErrCodeValidation, response.Error)
	assert.Contains(t, response.Details, "scheme must be http or https")
}

func TestHandleStartMonitorMalformedBody(t *testing.T) {
	handler, _, _, _ := setupTestHandler(t)

	req := httptest.NewRequest("POST", "/api/start", strings.NewReader(`{"sources": [`))
	w := httptest.NewRecorder()

	handler.HandleStartMonitor(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response middleware.APIError
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, middleware.ErrCodeBadRequest, response.Error)
}

func TestHandleStopMonitor(t *testing.T) {
	handler, mockMonitor, _, _ := setupTestHandler(t)

	mockMonitor.On("Stop").Return()

	req := httptest.NewRequest("POST", "/api/stop", nil)
	w := httptest.NewRecorder()

	handler.HandleStopMonitor(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response StopResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "stopped", response.Status)
	mockMonitor.AssertCalled(t, "Stop")
}

func TestHandleGetStatus(t *testing.T) {
	handler, mockMonitor, mockLog, _ := setupTestHandler(t)

	lastFetch := time.Now().UTC()
	mockMonitor.On("Running").Return(true)
	mockMonitor.On("Health").Return([]types.SourceHealth{
		{
			Name:            "openai",
			URL:             "https://status.openai.com/history.atom",
			Kind:            types.KindFeed,
			State:           types.StateIdle,
			IntervalSeconds: 30,
			LastFetch:       &lastFetch,
		},
	})
	mockLog.On("Recent", 50).Return([]types.ChangeEvent{
		{Source: "openai", Kind: types.EventNewEntry, EntryID: "incident-1", Title: "Elevated error rates"},
	})

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()

	handler.HandleGetStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response StatusResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.True(t, response.Running)
	require.Len(t, response.Sources, 1)
	assert.Equal(t, "openai", response.Sources[0].Name)
	assert.Equal(t, types.StateIdle, response.Sources[0].State)
	require.Len(t, response.Events, 1)
	assert.Equal(t, "incident-1", response.Events[0].EntryID)
}

func TestHandleGetStatusStopped(t *testing.T) {
	handler, mockMonitor, mockLog, _ := setupTestHandler(t)

	mockMonitor.On("Running").Return(false)
	mockMonitor.On("Health").Return([]types.SourceHealth{})
	mockLog.On("Recent", 50).Return([]types.ChangeEvent{})

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()

	handler.HandleGetStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response StatusResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.False(t, response.Running)
	assert.Empty(t, response.Sources)
	assert.Empty(t, response.Events)
}

func TestHandleGetEvents(t *testing.T) {
	handler, _, mockLog, _ := setupTestHandler(t)

	mockLog.On("Recent", 10).Return([]types.ChangeEvent{
		{Source: "openai", Kind: types.EventNewEntry, EntryID: "incident-2"},
		{Source: "openai", Kind: types.EventNewEntry, EntryID: "incident-1"},
	})
	mockLog.On("Total").Return(uint64(7))

	req := httptest.NewRequest("GET", "/api/events?limit=10", nil)
	w := httptest.NewRecorder()

	handler.HandleGetEvents(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response EventsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, 2, response.Count)
	assert.Equal(t, uint64(7), response.Total)
	require.Len(t, response.Events, 2)
	assert.Equal(t, "incident-2", response.Events[0].EntryID)
}

func TestHandleGetEventsDefaultLimit(t *testing.T) {
	handler, _, mockLog, _ := setupTestHandler(t)

	mockLog.On("Recent", 50).Return([]types.ChangeEvent{})
	mockLog.On("Total").Return(uint64(0))

	req := httptest.NewRequest("GET", "/api/events", nil)
	w := httptest.NewRecorder()

	handler.HandleGetEvents(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockLog.AssertCalled(t, "Recent", 50)
}

func TestHandleGetEventsInvalidLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit string
	}{
		{"non-numeric", "abc"},
		{"zero", "0"},
		{"negative", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, _, _ := setupTestHandler(t)

			req := httptest.NewRequest("GET", "/api/events?limit="+tt.limit, nil)
			w := httptest.NewRecorder()

			handler.HandleGetEvents(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var response middleware.APIError
			err := json.Unmarshal(w.Body.Bytes(), &response)
			require.NoError(t, err)
			assert.Equal(t, middleware.ErrCodeBadRequest, response.Error)
		})
	}
}

func TestHandleGetSources(t *testing.T) {
	handler, _, _, _ := setupTestHandler(t)

	req := httptest.NewRequest("GET", "/api/sources", nil)
	w := httptest.NewRecorder()

	handler.HandleGetSources(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response []SourcePreset
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.NotEmpty(t, response)
	for _, preset := range response {
		assert.NotEmpty(t, preset.Name)
		assert.True(t, strings.HasPrefix(preset.URL, "https://"))
		assert.Equal(t, "feed", preset.Kind)
	}
}

func TestNewHandlerDefaults(t *testing.T) {
	mockMonitor := &MockMonitor{}
	mockLog := &MockEventLog{}
	mockBus := &MockBus{}
	logger := logrus.New()

	handler := NewHandler(mockMonitor, mockLog, mockBus, Options{}, logger)

	assert.NotNil(t, handler)
	assert.Equal(t, 50, handler.Options.StatusEventsLimit)
	assert.Equal(t, logger, handler.Logger)
}
