package monitor

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/statuswatch/status-monitor-backend/types"
)

// SourceSpec is one source definition as supplied by the sources file or the
// start request body. Everything except the URL can be defaulted.
type SourceSpec struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	Kind     string `json:"kind,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// Defaults fills the optional SourceSpec fields during validation.
type Defaults struct {
	Interval time.Duration
	Kind     types.SourceKind
}

// ConfigError reports an invalid source definition. It is fatal at startup
// and maps to a 400 response when the definition arrives over the API.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid source configuration: %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid source configuration: %s: %s", e.Field, e.Reason)
}

// BuildSources validates a set of specs and resolves them into runnable
// sources. The first invalid spec aborts the whole build so a run never
// starts with a partial source set.
func BuildSources(specs []SourceSpec, defaults Defaults) ([]types.Source, error) {
	if len(specs) == 0 {
		return nil, &ConfigError{Field: "sources", Reason: "at least one source is required"}
	}

	sources := make([]types.Source, 0, len(specs))
	names := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		source, err := buildSource(spec, defaults)
		if err != nil {
			return nil, err
		}
		if _, dup := names[source.Name]; dup {
			return nil, &ConfigError{Field: "name", Value: source.Name, Reason: "duplicate source name"}
		}
		names[source.Name] = struct{}{}
		sources = append(sources, source)
	}
	return sources, nil
}

func buildSource(spec SourceSpec, defaults Defaults) (types.Source, error) {
	if strings.TrimSpace(spec.URL) == "" {
		return types.Source{}, &ConfigError{Field: "url", Reason: "url is required"}
	}
	parsed, err := url.Parse(spec.URL)
	if err != nil {
		return types.Source{}, &ConfigError{Field: "url", Value: spec.URL, Reason: "not a valid URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return types.Source{}, &ConfigError{Field: "url", Value: spec.URL, Reason: "scheme must be http or https"}
	}
	if parsed.Host == "" {
		return types.Source{}, &ConfigError{Field: "url", Value: spec.URL, Reason: "host is missing"}
	}

	kind := defaults.Kind
	switch spec.Kind {
	case "":
	case string(types.KindFeed):
		kind = types.KindFeed
	case string(types.KindGenericHTTP):
		kind = types.KindGenericHTTP
	default:
		return types.Source{}, &ConfigError{Field: "kind", Value: spec.Kind, Reason: `must be "feed" or "generic-http"`}
	}

	interval := defaults.Interval
	if spec.Interval != "" {
		interval, err = time.ParseDuration(spec.Interval)
		if err != nil {
			return types.Source{}, &ConfigError{Field: "interval", Value: spec.Interval, Reason: "not a valid duration"}
		}
	}
	if interval < time.Second {
		return types.Source{}, &ConfigError{Field: "interval", Value: interval.String(), Reason: "must be at least 1s"}
	}

	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = parsed.Host
	}

	return types.Source{Name: name, URL: spec.URL, Kind: kind, Interval: interval}, nil
}
