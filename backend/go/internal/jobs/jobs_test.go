package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"CaseForAI/backend/go/pkg/logger"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsBadSpec(t *testing.T) {
	s := NewScheduler(logger.Nop())
	err := s.Add(Job{Name: "x", Spec: "not a spec", Run: func(context.Context) (int, error) { return 0, nil }})
	assert.Error(t, err)

	err = s.Add(Job{Name: "y", Spec: "@hourly"})
	assert.Error(t, err)
}

func TestRunNowReturnsAggregatedErrors(t *testing.T) {
	s := NewScheduler(logger.Nop())
	require.NoError(t, s.Add(Job{Name: RemindSignatures, Spec: "0 9 * * *", Run: func(context.Context) (int, error) {
		var result *multierror.Error
		result = multierror.Append(result, errors.New("req-1: provider down"), errors.New("req-2: provider down"))
		return 3, result.ErrorOrNil()
	}}))

	err := s.RunNow(context.Background(), RemindSignatures)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)

	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := NewScheduler(logger.Nop())
	require.NoError(t, s.Add(Job{Name: ExpireShares, Spec: "@hourly", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}))

	err := s.RunNow(context.Background(), ExpireShares)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduledRun(t *testing.T) {
	s := NewScheduler(logger.Nop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add(Job{Name: "tick", Spec: "@every 1s", Run: func(context.Context) (int, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 1, nil
	}}))
	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
