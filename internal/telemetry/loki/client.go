// Package loki pushes proctoring lifecycle events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// JobLabel is the job label on every stream pushed by this service.
const JobLabel = "ihire-proctoring"

const pushPath = "/loki/api/v1/push"

var invalidLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// eventLabels maps Loki label names to gjson paths in an event document. Only low-cardinality
// fields become labels; session and candidate identifiers stay in the line.
var eventLabels = [...]struct{ label, path string }{
	{"event_type", "eventType"},
	{"source", "source"},
	{"severity", "severity"},
}

// Entry is one log line bound for Loki.
type Entry struct {
	Time   time.Time
	Line   string
	Labels map[string]string
}

// EntryFromEvent builds an Entry from an event document as written to Kafka. The event's
// createdAt becomes the entry time; fallback is used when it is missing or unparseable. A value
// that is not a JSON object is kept verbatim with no extra labels.
func EntryFromEvent(raw []byte, fallback time.Time) Entry {
	e := Entry{Time: fallback, Line: string(raw), Labels: map[string]string{}}
	if !gjson.ValidBytes(raw) {
		return e
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return e
	}
	for _, l := range eventLabels {
		if v := doc.Get(l.path).String(); v != "" {
			e.Labels[l.label] = v
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, doc.Get("createdAt").String()); err == nil {
		e.Time = created
	}
	return e
}

type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// Client pushes entries to one Loki instance.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a Client for the Loki base URL (e.g. http://localhost:3100). httpClient may
// be nil.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("loki: base URL is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{endpoint: strings.TrimSuffix(baseURL, "/") + pushPath, http: httpClient}, nil
}

// Push sends entries in one request, one stream per distinct label set. An empty batch is a no-op.
func (c *Client) Push(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(pushRequest{Streams: groupStreams(entries)})
	if err != nil {
		return fmt.Errorf("loki: encode push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("loki: push returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func groupStreams(entries []Entry) []stream {
	var (
		order   []string
		streams = map[string]*stream{}
	)
	for _, e := range entries {
		labels := streamLabels(e.Labels)
		key := labelKey(labels)
		s, ok := streams[key]
		if !ok {
			s = &stream{Stream: labels}
			streams[key] = s
			order = append(order, key)
		}
		s.Values = append(s.Values, [2]string{strconv.FormatInt(e.Time.UnixNano(), 10), e.Line})
	}
	out := make([]stream, 0, len(order))
	for _, key := range order {
		out = append(out, *streams[key])
	}
	return out
}

func streamLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		if v = invalidLabelChars.ReplaceAllString(strings.TrimSpace(v), "_"); v != "" {
			out[k] = v
		}
	}
	out["job"] = JobLabel
	return out
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
