/*
Package normalize turns raw source bodies into a uniform entry stream.

Key Functions:
  - Normalizer.Normalize: Parses an Atom/RSS body into normalized entries,
    falling back to an opaque blob when the document is not a usable feed.

Dependencies:
  - Uses the `gofeed` library for Atom/RSS parsing.

A parse failure is not an error here: sources publish broken XML all the
time, and the monitor degrades to fingerprint-based change detection instead
of giving up on the source.
*/
package normalize

import (
	"bytes"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/types"
	"github.com/statuswatch/status-monitor-backend/utils"
)

// Result is the outcome of normalizing one fetched body. Either Entries is
// populated (usable feed) or Fallback is set and Raw carries the bytes for
// fingerprint comparison.
type Result struct {
	Entries  []types.Entry
	Fallback bool
	Raw      []byte
	Reason   string
}

// Options configures normalization
type Options struct {
	DetailMaxLen int
}

// Normalizer parses source bodies. It is stateless and safe for concurrent
// use by all pollers.
type Normalizer struct {
	opts   Options
	logger *logrus.Logger
}

// New creates a Normalizer
func New(opts Options, logger *logrus.Logger) *Normalizer {
	return &Normalizer{opts: opts, logger: logger}
}

// Normalize interprets body according to the source kind. Sources of kind
// generic-http never go through the feed parser; feed sources fall back to
// the opaque path when parsing fails or no entry carries an identifier.
func (n *Normalizer) Normalize(source types.Source, body []byte) *Result {
	if source.Kind == types.KindGenericHTTP {
		return &Result{Fallback: true, Raw: body, Reason: "generic-http source"}
	}

	parser := gofeed.NewParser()
	feed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"source": source.Name,
			"error":  err.Error(),
		}).Debug("Feed parse failed, using content fingerprint")
		return &Result{Fallback: true, Raw: body, Reason: err.Error()}
	}

	entries := make([]types.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}
		entries = append(entries, n.entryFromItem(source, item, id))
	}

	if len(entries) == 0 && len(feed.Items) > 0 {
		// The document parsed but nothing in it can be tracked by identity.
		return &Result{Fallback: true, Raw: body, Reason: "no usable entry identifiers"}
	}

	return &Result{Entries: entries}
}

func (n *Normalizer) entryFromItem(source types.Source, item *gofeed.Item, id string) types.Entry {
	summary := item.Description
	if summary == "" {
		summary = item.Content
	}
	detail := utils.TruncateText(utils.FlattenHTML(summary), n.opts.DetailMaxLen)
	title := strings.TrimSpace(item.Title)

	var published time.Time
	switch {
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	}

	return types.Entry{
		ID:        id,
		Title:     title,
		Summary:   detail,
		Link:      item.Link,
		Product:   utils.ClassifyProduct(title, detail),
		Published: published,
		Source:    source.Name,
	}
}
