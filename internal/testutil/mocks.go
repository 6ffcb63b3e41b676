package testutil

import (
	"context"
	"time"

	"github.com/studio-arteamo/sitecms/internal/idp"
	"github.com/studio-arteamo/sitecms/internal/storage"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

// MockProvider is a testify mock of idp.Provider.
type MockProvider struct {
	mock.Mock
}

var _ idp.Provider = (*MockProvider)(nil)

func (m *MockProvider) Type() string {
	return m.Called().String(0)
}

func (m *MockProvider) AuthURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *MockProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*idp.UserInfo, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idp.UserInfo), args.Error(1)
}

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) ConsumeState(ctx context.Context, nonce string, expiresAt time.Time) error {
	return m.Called(ctx, nonce, expiresAt).Error(0)
}

func (m *MockStorage) RecordLogin(ctx context.Context, email, name, picture string, at time.Time) error {
	return m.Called(ctx, email, name, picture, at).Error(0)
}

func (m *MockStorage) RecordCommit(ctx context.Context, rec storage.CommitRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockStorage) ListCommits(ctx context.Context, limit int) ([]storage.CommitRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.CommitRecord), args.Error(1)
}

func (m *MockStorage) CleanupExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) Close() error {
	return m.Called().Error(0)
}
