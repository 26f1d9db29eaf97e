package monitor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statuswatch/status-monitor-backend/bus"
	"github.com/statuswatch/status-monitor-backend/detector"
	"github.com/statuswatch/status-monitor-backend/eventlog"
	"github.com/statuswatch/status-monitor-backend/fetcher"
	"github.com/statuswatch/status-monitor-backend/normalize"
)

const managerTestFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Managed Status</title>
  <id>tag:managed</id>
  <entry>
    <id>incident-1</id>
    <title>Initial incident</title>
  </entry>
</feed>`

func newTestManager(t *testing.T) (*Manager, *eventlog.Log, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(managerTestFeed))
	}))
	t.Cleanup(server.Close)

	log := eventlog.New(128)
	eventBus := bus.New(bus.Options{QueueDepth: 64}, log, logger)
	t.Cleanup(func() { eventBus.Close() })

	det := detector.New(detector.Options{SeenWindow: 100, FailureThreshold: 5}, logger)
	fetch := fetcher.New(fetcher.Options{Timeout: 2 * time.Second, UserAgent: "t", MaxBodyBytes: 1 << 20}, logger)
	norm := normalize.New(normalize.Options{DetailMaxLen: 400}, logger)

	opts := Options{
		Defaults: Defaults{Interval: time.Hour, Kind: "feed"},
	}
	opts.Poller.BackoffFactor = 2.0
	opts.Poller.BackoffMax = time.Minute

	mgr := NewManager(opts, det, fetch, norm, eventBus, log, logger)
	t.Cleanup(mgr.Stop)
	return mgr, log, server.URL
}

func TestManagerStartStop(t *testing.T) {
	mgr, _, url := newTestManager(t)

	assert.False(t, mgr.Running())
	assert.Empty(t, mgr.Health())
	assert.Empty(t, mgr.Sources())

	err := mgr.Start([]SourceSpec{{Name: "managed", URL: url, Interval: "1h"}})
	require.NoError(t, err)

	assert.True(t, mgr.Running())
	require.Len(t, mgr.Sources(), 1)
	assert.Equal(t, "managed", mgr.Sources()[0].Name)
	require.Len(t, mgr.Health(), 1)

	mgr.Stop()
	assert.False(t, mgr.Running())
	assert.Empty(t, mgr.Health())
}

func TestManagerFirstPollPopulatesEventLog(t *testing.T) {
	mgr, log, url := newTestManager(t)

	require.NoError(t, mgr.Start([]SourceSpec{{Name: "managed", URL: url, Interval: "1h"}}))

	require.Eventually(t, func() bool { return log.Len() > 0 }, 3*time.Second, 10*time.Millisecond)
	events := log.Recent(10)
	assert.Equal(t, "incident-1", events[0].EntryID)
}

func TestManagerRestartClearsEventLog(t *testing.T) {
	mgr, log, url := newTestManager(t)

	require.NoError(t, mgr.Start([]SourceSpec{{Name: "first", URL: url, Interval: "1h"}}))
	require.Eventually(t, func() bool { return log.Len() > 0 }, 3*time.Second, 10*time.Millisecond)

	// A new run starts from an empty log, then repopulates from its own
	// first poll.
	require.NoError(t, mgr.Start([]SourceSpec{{Name: "second", URL: url, Interval: "1h"}}))
	require.Eventually(t, func() bool {
		events := log.Recent(10)
		return len(events) > 0 && events[0].Source == "second"
	}, 3*time.Second, 10*time.Millisecond)

	for _, ev := range log.Recent(100) {
		assert.NotEqual(t, "first", ev.Source, "events from the previous run must be cleared")
	}
}

func TestManagerInvalidStartLeavesRunUntouched(t *testing.T) {
	mgr, _, url := newTestManager(t)

	require.NoError(t, mgr.Start([]SourceSpec{{Name: "managed", URL: url, Interval: "1h"}}))
	require.True(t, mgr.Running())

	err := mgr.Start([]SourceSpec{{URL: "ftp://bad.example.com"}})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	assert.True(t, mgr.Running())
	require.Len(t, mgr.Sources(), 1)
	assert.Equal(t, "managed", mgr.Sources()[0].Name)
}

func TestManagerStopIdempotent(t *testing.T) {
	mgr, _, url := newTestManager(t)

	require.NoError(t, mgr.Start([]SourceSpec{{Name: "managed", URL: url, Interval: "1h"}}))
	mgr.Stop()
	mgr.Stop()
	assert.False(t, mgr.Running())
}

func TestManagerFailingSourcesEmptyWhenStopped(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	assert.Equal(t, 0, mgr.FailingSources())
}
