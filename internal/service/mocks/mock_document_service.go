package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docsync/internal/model"
	"docsync/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Save(ctx context.Context, meta model.Metadata, dataURI string) (*service.SaveResult, error) {
	args := m.Called(ctx, meta, dataURI)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SaveResult), args.Error(1)
}

func (m *MockDocumentService) FindByID(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) FindByFileName(ctx context.Context, fileName string) (*model.Document, error) {
	args := m.Called(ctx, fileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentService) ListPending(ctx context.Context) ([]model.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) RunSync(ctx context.Context) (service.SyncReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.SyncReport), args.Error(1)
}
