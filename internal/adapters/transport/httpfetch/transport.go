package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olivierlemasle/cloud-init/internal/errors"
)

// Transport fetches metadata documents over HTTP with an explicit
// per-request timeout. Retry policy belongs to the prober, not here.
type Transport struct {
	client *http.Client
}

func New() *Transport {
	return &Transport{
		client: &http.Client{
			// Connection reuse across seed fetches; the per-request
			// timeout comes from the caller's context.
			Transport: http.DefaultTransport,
		},
	}
}

func (t *Transport) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFetchError, fmt.Sprintf("invalid metadata URL %s", url))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		code := errors.CodeFetchError
		if ctx.Err() == context.DeadlineExceeded {
			code = errors.CodeFetchTimeout
		}
		return nil, errors.Wrap(err, code, fmt.Sprintf("fetch %s failed", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeFetchError, fmt.Sprintf("fetch %s returned status %d", url, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFetchError, fmt.Sprintf("reading response from %s failed", url))
	}
	return body, nil
}
