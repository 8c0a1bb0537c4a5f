package dmssync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Credentials is the decrypted DMS identity for one organization.
type Credentials struct {
	APIKey    string
	DealerRef string
}

type FetchOptions struct {
	SiteRef      string
	ServiceTypes []string
}

// FetchResult is the adapter contract: transport and auth failures are
// reported through Success/Error, never as a panic or a Go error.
type FetchResult struct {
	Success  bool
	Bookings []ExternalBooking
	Error    string
}

// BookingAdapter fetches the bookings for one date from the DMS.
type BookingAdapter interface {
	FetchBookings(ctx context.Context, creds Credentials, date string, opts FetchOptions) FetchResult
}

type dmsClient struct {
	baseURL   string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

// NewHTTPAdapter builds the production adapter from env:
// DMS_API_BASE_URL, DMS_API_KEY_HEADER, DMS_RATE_LIMIT_PER_MIN.
func NewHTTPAdapter() BookingAdapter {
	baseURL := strings.TrimSpace(os.Getenv("DMS_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.autodms.io"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("DMS_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("DMS_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &dmsClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}
}

type bookingListResponse struct {
	Success  *bool             `json:"success"`
	Bookings []ExternalBooking `json:"bookings"`
	Data     []ExternalBooking `json:"data"`
	Error    string            `json:"error"`
}

func (c *dmsClient) FetchBookings(ctx context.Context, creds Credentials, date string, opts FetchOptions) FetchResult {
	if strings.TrimSpace(creds.APIKey) == "" {
		return FetchResult{Success: false, Error: "dms api key is empty"}
	}

	<-c.limiter

	params := url.Values{}
	params.Set("date", date)
	if creds.DealerRef != "" {
		params.Set("dealer", creds.DealerRef)
	}
	if opts.SiteRef != "" {
		params.Set("site", opts.SiteRef)
	}
	if len(opts.ServiceTypes) > 0 {
		params.Set("service_types", strings.Join(opts.ServiceTypes, ","))
	}

	endpoint := c.baseURL + "/v1/bookings?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return FetchResult{Success: false, Error: err.Error()}
	}
	req.Header.Set(c.apiKeyHdr, creds.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return FetchResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FetchResult{Success: false, Error: fmt.Sprintf("dms api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var parsed bookingListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return FetchResult{Success: false, Error: "invalid dms response: " + err.Error()}
	}
	if parsed.Success != nil && !*parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "dms reported failure"
		}
		return FetchResult{Success: false, Error: msg}
	}

	bookings := parsed.Bookings
	if len(bookings) == 0 {
		bookings = parsed.Data
	}
	return FetchResult{Success: true, Bookings: bookings}
}
