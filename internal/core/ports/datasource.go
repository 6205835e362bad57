package ports

import (
	"context"
	"time"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
)

// Datasource is one platform-specific source of instance metadata. Detect
// must be cheap and local (it is re-run on every boot to validate the
// cache and is never retried); Fetch may hit the network and is bounded
// and retried by the prober.
type Datasource interface {
	Type() string
	Detect(ctx context.Context) (bool, error)
	// DetectionFingerprint identifies the detection path that matched,
	// e.g. a DMI vendor string or a seed volume path. It feeds the cached
	// platform signature.
	DetectionFingerprint() string
	Fetch(ctx context.Context) (*domain.InstanceMetadata, error)
}

// Transport is the abstract network fetch capability consumed by
// datasources that pull metadata over HTTP.
type Transport interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}
