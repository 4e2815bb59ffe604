package submit

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

	"github.com/hpungsan/leadcap/internal/contact"
)

// HTTPSink talks to a CRM over JSON HTTP. Send posts leads to SinkURL;
// the lookups use AvailabilityURL and JobTypeURL.
type HTTPSink struct {
	SinkURL         string
	AvailabilityURL string
	JobTypeURL      string
	HTTP            *http.Client
}

// NewHTTPSink returns a sink whose calls time out after timeout.
func NewHTTPSink(sinkURL, availabilityURL, jobTypeURL string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		SinkURL:         sinkURL,
		AvailabilityURL: availabilityURL,
		JobTypeURL:      jobTypeURL,
		HTTP:            &http.Client{Timeout: timeout},
	}
}

type sendPayload struct {
	Lead   *contact.Lead `json:"lead"`
	Extras Extras        `json:"extras"`
}

func (s *HTTPSink) Send(ctx context.Context, lead *contact.Lead, extras Extras) (SinkResult, error) {
	if s.SinkURL == "" {
		return SinkResult{}, fmt.Errorf("missing sink url")
	}
	body, err := json.Marshal(sendPayload{Lead: lead, Extras: extras})
	if err != nil {
		return SinkResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.SinkURL, bytes.NewReader(body))
	if err != nil {
		return SinkResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res SinkResult
	if err := s.do(req, &res); err != nil {
		return SinkResult{}, fmt.Errorf("send lead: %w", err)
	}
	return res, nil
}

type availabilityResponse struct {
	BusyDays []string `json:"busyDays"`
}

func (s *HTTPSink) GetAvailability(ctx context.Context, r DateRange, opts AvailabilityOptions) ([]string, error) {
	q := url.Values{}
	q.Set("from", r.From.Format(time.DateOnly))
	q.Set("to", r.To.Format(time.DateOnly))
	if opts.ClassID != "" {
		q.Set("class", opts.ClassID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withQuery(s.AvailabilityURL, q), nil)
	if err != nil {
		return nil, err
	}
	var res availabilityResponse
	if err := s.do(req, &res); err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	return res.BusyDays, nil
}

func (s *HTTPSink) GetJobType(ctx context.Context, description string) (*JobType, error) {
	q := url.Values{}
	q.Set("description", description)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withQuery(s.JobTypeURL, q), nil)
	if err != nil {
		return nil, err
	}
	var jt JobType
	if err := s.do(req, &jt); err != nil {
		if err == errNoContent {
			return nil, nil
		}
		return nil, fmt.Errorf("get job type: %w", err)
	}
	if jt.ID == "" {
		return nil, nil
	}
	return &jt, nil
}

var errNoContent = fmt.Errorf("no content")

func (s *HTTPSink) do(req *http.Request, out any) error {
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotFound:
		return errNoContent
	case res.StatusCode < 200 || res.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func withQuery(base string, q url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}
