package mocks

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/stretchr/testify/mock"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	ports "github.com/olivierlemasle/cloud-init/internal/core/ports"
)

// MockIMDSClient is a mock implementation of the instance metadata client
type MockIMDSClient struct {
	mock.Mock
}

func (m *MockIMDSClient) GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*imds.GetMetadataOutput), args.Error(1)
}

func (m *MockIMDSClient) GetUserData(ctx context.Context, params *imds.GetUserDataInput, optFns ...func(*imds.Options)) (*imds.GetUserDataOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*imds.GetUserDataOutput), args.Error(1)
}

func (m *MockIMDSClient) GetInstanceIdentityDocument(ctx context.Context, params *imds.GetInstanceIdentityDocumentInput, optFns ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*imds.GetInstanceIdentityDocumentOutput), args.Error(1)
}

// MockDatasource is a mock implementation of ports.Datasource
type MockDatasource struct {
	mock.Mock
}

func (m *MockDatasource) Type() string {
	return m.Called().String(0)
}

func (m *MockDatasource) Detect(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatasource) DetectionFingerprint() string {
	return m.Called().String(0)
}

func (m *MockDatasource) Fetch(ctx context.Context) (*domain.InstanceMetadata, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InstanceMetadata), args.Error(1)
}

// MockApplier is a mock implementation of ports.ModuleApplier
type MockApplier struct {
	mock.Mock
}

func (m *MockApplier) Name() string {
	return m.Called().String(0)
}

func (m *MockApplier) Apply(ctx context.Context, metadata *domain.InstanceMetadata, settings map[string]any) ports.ApplyResult {
	args := m.Called(ctx, metadata, settings)
	return args.Get(0).(ports.ApplyResult)
}

// MockTransport is a mock implementation of ports.Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	args := m.Called(ctx, url, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockEventSink is a mock implementation of ports.EventSink
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Record(ctx context.Context, event domain.Event) error {
	return m.Called(ctx, event).Error(0)
}

// NopLogger is a Logger that discards everything; tests use it where log
// output is irrelevant.
type NopLogger struct{}

func (NopLogger) Debugf(ctx context.Context, format string, args ...any)            {}
func (NopLogger) Infof(ctx context.Context, format string, args ...any)             {}
func (NopLogger) Warnf(ctx context.Context, format string, args ...any)             {}
func (NopLogger) Errorf(ctx context.Context, err error, format string, args ...any) {}
func (l NopLogger) WithFields(fields map[string]any) ports.Logger                   { return l }
