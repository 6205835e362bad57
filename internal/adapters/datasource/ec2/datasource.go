package ec2

import (
	"context"
	stderrs "errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/smithy-go"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

const DatasourceTypeEC2 = "ec2"

const (
	defaultDMIProductPath = "/sys/class/dmi/id/product_uuid"
	dmiVendorPath         = "/sys/class/dmi/id/sys_vendor"
)

type Config struct {
	// Endpoint overrides the IMDS base URL (tests, proxies).
	Endpoint string
	MaxRPS   int
	// DMIProductPath overrides where the firmware product UUID is read
	// from; tests point it at a fixture.
	DMIProductPath string
}

// Datasource identifies EC2 through firmware tags and fetches instance
// metadata from the on-instance metadata service (IMDSv2 token handling
// is done by the SDK client).
type Datasource struct {
	cfg         Config
	client      IMDSClient
	logger      ports.Logger
	fingerprint string
}

func New(ctx context.Context, cfg Config, logger ports.Logger) (*Datasource, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigValidation, "failed to load default AWS config")
	}
	// The probe layer owns retry policy; SDK-level retries would stack
	// on top of it and stretch detection far past the candidate timeout.
	awsCfg.Retryer = func() aws.Retryer { return aws.NopRetryer{} }
	client := imds.NewFromConfig(awsCfg, func(o *imds.Options) {
		if cfg.Endpoint != "" {
			o.Endpoint = cfg.Endpoint
		}
	})
	return NewWithClient(cfg, client, logger), nil
}

func NewWithClient(cfg Config, client IMDSClient, logger ports.Logger) *Datasource {
	InitializeLimiter(cfg.MaxRPS, logger)
	return &Datasource{cfg: cfg, client: client, logger: logger}
}

func (d *Datasource) Type() string {
	return DatasourceTypeEC2
}

// Detect reads DMI data exposed through sysfs: EC2 instances carry a
// product UUID starting with "ec2" (HVM) or an Amazon vendor string.
func (d *Datasource) Detect(ctx context.Context) (bool, error) {
	productPath := d.cfg.DMIProductPath
	if productPath == "" {
		productPath = defaultDMIProductPath
	}
	if raw, err := os.ReadFile(productPath); err == nil {
		uuid := strings.ToLower(strings.TrimSpace(string(raw)))
		if strings.HasPrefix(uuid, "ec2") {
			d.fingerprint = "dmi-product-uuid:" + uuid[:3]
			return true, nil
		}
	}
	if raw, err := os.ReadFile(dmiVendorPath); err == nil {
		vendor := strings.ToLower(strings.TrimSpace(string(raw)))
		if strings.Contains(vendor, "amazon") {
			d.fingerprint = "dmi-sys-vendor:" + vendor
			return true, nil
		}
	}
	return false, nil
}

func (d *Datasource) DetectionFingerprint() string {
	return d.fingerprint
}

func (d *Datasource) Fetch(ctx context.Context) (*domain.InstanceMetadata, error) {
	if err := waitLimiter(ctx, d.logger); err != nil {
		return nil, errors.Wrap(err, errors.CodeFetchError, "IMDS rate limiter interrupted")
	}
	identity, err := d.client.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		return nil, classifyIMDSError(ctx, err, "instance identity document")
	}

	md := &domain.InstanceMetadata{
		InstanceID:       identity.InstanceID,
		AvailabilityZone: identity.AvailabilityZone,
		Region:           identity.Region,
		FetchedAt:        time.Now().UTC(),
	}

	if hostname, err := d.metadataString(ctx, "local-hostname"); err == nil {
		md.LocalHostname = hostname
		md.Hostname = hostname
	} else {
		d.logger.Debugf(ctx, "local-hostname unavailable: %v", err)
	}

	if hostname, err := d.metadataString(ctx, "hostname"); err == nil {
		md.Hostname = hostname
	}

	userData, err := d.fetchUserData(ctx)
	if err != nil {
		return nil, err
	}
	md.UserData = userData

	keys, err := d.fetchPublicKeys(ctx)
	if err != nil {
		d.logger.Warnf(ctx, "public keys unavailable: %v", err)
	} else {
		md.PublicSSHKeys = keys
	}

	network, err := d.fetchNetworkConfig(ctx)
	if err != nil {
		d.logger.Warnf(ctx, "network layout unavailable: %v", err)
	} else {
		md.NetworkConfig = network
	}

	return md, nil
}

func (d *Datasource) metadataString(ctx context.Context, path string) (string, error) {
	if err := waitLimiter(ctx, d.logger); err != nil {
		return "", errors.Wrap(err, errors.CodeFetchError, "IMDS rate limiter interrupted")
	}
	out, err := d.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		return "", classifyIMDSError(ctx, err, path)
	}
	defer out.Content.Close()
	raw, err := io.ReadAll(out.Content)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeFetchError, "reading IMDS response for "+path)
	}
	return strings.TrimSpace(string(raw)), nil
}

// fetchUserData treats a 404 as "no user data supplied", which is the
// common case, not an error.
func (d *Datasource) fetchUserData(ctx context.Context) ([]byte, error) {
	if err := waitLimiter(ctx, d.logger); err != nil {
		return nil, errors.Wrap(err, errors.CodeFetchError, "IMDS rate limiter interrupted")
	}
	out, err := d.client.GetUserData(ctx, &imds.GetUserDataInput{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classifyIMDSError(ctx, err, "user-data")
	}
	defer out.Content.Close()
	raw, err := io.ReadAll(out.Content)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFetchError, "reading user-data")
	}
	return raw, nil
}

func classifyIMDSError(ctx context.Context, err error, what string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(err, errors.CodeFetchTimeout, "IMDS fetch of "+what+" timed out")
	}
	return errors.Wrap(err, errors.CodeFetchError, "IMDS fetch of "+what+" failed")
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if stderrs.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NotFound" || code == "404" {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
