package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"capture/internal/model"
	"capture/internal/rag"
)

type MockSplitter struct {
	mock.Mock
}

func (m *MockSplitter) Split(content string) []string {
	args := m.Called(content)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

func (m *MockEmbedder) EmbedChunks(ctx context.Context, texts []string) ([][]float64, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float64), args.Error(1)
}

type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float64) (int, error) {
	args := m.Called(ctx, chunks, vectors)
	return args.Int(0), args.Error(1)
}

func (m *MockVectorIndex) Search(ctx context.Context, vector []float64, topK int) ([]model.ScoredChunk, error) {
	args := m.Called(ctx, vector, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScoredChunk), args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, opts rag.GenerationOptions) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}
