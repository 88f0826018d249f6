package card

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
)

type ResolverConfig struct {
	APIKey     string
	APIBaseURL string
	Timeout    time.Duration
}

// HTTPResolver looks intents up against the card processor API. Lookup
// failures are reported as ErrLookupUnavailable so the caller can leave the
// delivery unacknowledged and let the provider redeliver.
type HTTPResolver struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(cfg ResolverConfig) *HTTPResolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPResolver{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPResolver) ResolveIntent(ctx context.Context, intentID string) (*Intent, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, domain.ErrInvalidEvent
	}
	if r.apiKey == "" || r.baseURL == "" {
		return nil, domain.ErrMissingSecret
	}

	endpoint := fmt.Sprintf("%s/payment_intents/%s", r.baseURL, url.PathEscape(intentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLookupUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLookupUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrLookupUnavailable, resp.StatusCode)
	}

	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLookupUnavailable, err)
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, fmt.Errorf("%w: empty intent", domain.ErrLookupUnavailable)
	}
	return &intent, nil
}
