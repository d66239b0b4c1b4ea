package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"capture/internal/metrics"
	"capture/internal/model"
	"capture/internal/repository"
	repoMocks "capture/internal/repository/mocks"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newSweeperForTest(t *testing.T, interval time.Duration) (*RetrySweeper, *repoMocks.MockDocumentRepository, *mockProcessor) {
	t.Helper()
	repo := new(repoMocks.MockDocumentRepository)
	proc := new(mockProcessor)
	sweeper := NewRetrySweeper(repo, proc, metrics.NewProcessingUnregistered(), testLogger(), 3, interval)
	return sweeper, repo, proc
}

func TestRetrySweeper_Sweep_RequeuesAndProcessesSequentially(t *testing.T) {
	sweeper, repo, proc := newSweeperForTest(t, time.Minute)
	ctx := context.Background()

	docs := []model.Document{
		{ID: "a", Status: model.StatusFailed, RetryCount: 1},
		{ID: "b", Status: model.StatusFailed, RetryCount: 2},
	}
	repo.On("FindRetryable", ctx, 3, mock.AnythingOfType("time.Time")).Return(docs, nil)
	repo.On("RequeueFailed", ctx, "a").Return(nil)
	repo.On("RequeueFailed", ctx, "b").Return(nil)
	proc.On("Process", ctx, "a").Return(nil)
	proc.On("Process", ctx, "b").Return(errors.New("still failing"))

	requeued, err := sweeper.Sweep(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 2, requeued)
	repo.AssertExpectations(t)
	proc.AssertExpectations(t)
}

func TestRetrySweeper_Sweep_SkipsDocumentThatCannotBeRequeued(t *testing.T) {
	sweeper, repo, proc := newSweeperForTest(t, time.Minute)
	ctx := context.Background()

	docs := []model.Document{
		{ID: "a", Status: model.StatusFailed},
		{ID: "b", Status: model.StatusFailed},
	}
	repo.On("FindRetryable", ctx, 3, mock.AnythingOfType("time.Time")).Return(docs, nil)
	repo.On("RequeueFailed", ctx, "a").Return(errors.New("db down"))
	repo.On("RequeueFailed", ctx, "b").Return(nil)
	proc.On("Process", ctx, "b").Return(nil)

	requeued, err := sweeper.Sweep(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, requeued)
	proc.AssertNotCalled(t, "Process", ctx, "a")
}

func TestRetrySweeper_Sweep_SkipsRowTakenByConcurrentSweep(t *testing.T) {
	sweeper, repo, proc := newSweeperForTest(t, time.Minute)
	ctx := context.Background()

	// Two rows read as failed; by the time "a" is re-armed another sweep
	// already took it, so the guarded requeue reports it is not failed.
	docs := []model.Document{
		{ID: "a", Status: model.StatusFailed},
		{ID: "b", Status: model.StatusFailed},
	}
	repo.On("FindRetryable", ctx, 3, mock.AnythingOfType("time.Time")).Return(docs, nil)
	repo.On("RequeueFailed", ctx, "a").Return(repository.ErrNotFailed)
	repo.On("RequeueFailed", ctx, "b").Return(nil)
	proc.On("Process", ctx, "b").Return(nil)

	requeued, err := sweeper.Sweep(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, requeued)
	// The contested row must not get a second processing attempt here.
	proc.AssertNotCalled(t, "Process", ctx, "a")
	repo.AssertExpectations(t)
}

func TestRetrySweeper_Sweep_QueryFailure(t *testing.T) {
	sweeper, repo, _ := newSweeperForTest(t, time.Minute)
	ctx := context.Background()

	repo.On("FindRetryable", ctx, 3, mock.AnythingOfType("time.Time")).
		Return(nil, errors.New("db down"))

	requeued, err := sweeper.Sweep(ctx)

	assert.Error(t, err)
	assert.Zero(t, requeued)
}

func TestRetrySweeper_Sweep_NothingEligible(t *testing.T) {
	sweeper, repo, proc := newSweeperForTest(t, time.Minute)
	ctx := context.Background()

	repo.On("FindRetryable", ctx, 3, mock.AnythingOfType("time.Time")).
		Return([]model.Document{}, nil)

	requeued, err := sweeper.Sweep(ctx)

	assert.NoError(t, err)
	assert.Zero(t, requeued)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestRetrySweeper_Run_StopsOnContextCancel(t *testing.T) {
	sweeper, repo, proc := newSweeperForTest(t, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	repo.On("FindRetryable", mock.Anything, 3, mock.AnythingOfType("time.Time")).
		Return([]model.Document{{ID: "a", Status: model.StatusFailed}}, nil).Maybe()
	repo.On("RequeueFailed", mock.Anything, "a").Return(nil).Maybe()
	proc.On("Process", mock.Anything, "a").Return(nil).Maybe()

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
