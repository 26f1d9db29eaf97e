package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statuswatch/status-monitor-backend/types"
)

func testDefaults() Defaults {
	return Defaults{Interval: 30 * time.Second, Kind: types.KindFeed}
}

func TestBuildSourcesDefaults(t *testing.T) {
	specs := []SourceSpec{{URL: "https://status.openai.com/history.atom"}}

	sources, err := BuildSources(specs, testDefaults())
	require.NoError(t, err)
	require.Len(t, sources, 1)

	assert.Equal(t, "status.openai.com", sources[0].Name)
	assert.Equal(t, types.KindFeed, sources[0].Kind)
	assert.Equal(t, 30*time.Second, sources[0].Interval)
}

func TestBuildSourcesExplicitFields(t *testing.T) {
	specs := []SourceSpec{{
		Name:     "github",
		URL:      "https://www.githubstatus.com/history.rss",
		Kind:     "generic-http",
		Interval: "2m",
	}}

	sources, err := BuildSources(specs, testDefaults())
	require.NoError(t, err)
	require.Len(t, sources, 1)

	assert.Equal(t, "github", sources[0].Name)
	assert.Equal(t, types.KindGenericHTTP, sources[0].Kind)
	assert.Equal(t, 2*time.Minute, sources[0].Interval)
}

func TestBuildSourcesValidation(t *testing.T) {
	tests := []struct {
		name      string
		specs     []SourceSpec
		wantField string
	}{
		{
			name:      "no sources",
			specs:     nil,
			wantField: "sources",
		},
		{
			name:      "missing url",
			specs:     []SourceSpec{{Name: "x"}},
			wantField: "url",
		},
		{
			name:      "bad scheme",
			specs:     []SourceSpec{{URL: "ftp://status.example.com/feed"}},
			wantField: "url",
		},
		{
			name:      "missing host",
			specs:     []SourceSpec{{URL: "https://"}},
			wantField: "url",
		},
		{
			name:      "unknown kind",
			specs:     []SourceSpec{{URL: "https://status.example.com/feed", Kind: "soap"}},
			wantField: "kind",
		},
		{
			name:      "unparseable interval",
			specs:     []SourceSpec{{URL: "https://status.example.com/feed", Interval: "fast"}},
			wantField: "interval",
		},
		{
			name:      "interval below minimum",
			specs:     []SourceSpec{{URL: "https://status.example.com/feed", Interval: "500ms"}},
			wantField: "interval",
		},
		{
			name: "duplicate names",
			specs: []SourceSpec{
				{Name: "dup", URL: "https://a.example.com/feed"},
				{Name: "dup", URL: "https://b.example.com/feed"},
			},
			wantField: "name",
		},
		{
			name: "duplicate defaulted names",
			specs: []SourceSpec{
				{URL: "https://status.example.com/a.atom"},
				{URL: "https://status.example.com/b.atom"},
			},
			wantField: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources, err := BuildSources(tt.specs, testDefaults())
			assert.Nil(t, sources)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
			assert.Contains(t, err.Error(), "invalid source configuration")
		})
	}
}

func TestBuildSourcesAbortsOnFirstInvalid(t *testing.T) {
	specs := []SourceSpec{
		{URL: "https://status.example.com/feed"},
		{URL: "not a url at all", Kind: "feed"},
	}

	sources, err := BuildSources(specs, testDefaults())
	assert.Nil(t, sources)
	require.Error(t, err)
}
