package book

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Insert(ctx context.Context, b *Book) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (*Book, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*Book), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) Update(ctx context.Context, id int64, mu Mutation) (*Book, error) {
	args := m.Called(ctx, id, mu)
	if b := args.Get(0); b != nil {
		return b.(*Book), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) SoftDelete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRepository) CountActive(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) ListActive(ctx context.Context, limit, offset int) ([]Book, error) {
	args := m.Called(ctx, limit, offset)
	if b := args.Get(0); b != nil {
		return b.([]Book), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMediaHost struct {
	mock.Mock
}

func (m *mockMediaHost) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *mockMediaHost) Upload(ctx context.Context, data []byte, contentType string) (ImageRef, error) {
	args := m.Called(ctx, data, contentType)
	return args.Get(0).(ImageRef), args.Error(1)
}

func (m *mockMediaHost) Delete(ctx context.Context, publicID string) bool {
	return m.Called(ctx, publicID).Bool(0)
}
