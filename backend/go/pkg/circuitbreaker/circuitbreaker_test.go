package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail() (interface{}, error) { return nil, errBoom }
func ok() (interface{}, error)   { return "ok", nil }

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	var transitions []string
	cb := New(2, 1, 10*time.Second,
		WithClock(func() time.Time { return now }),
		WithStateChange(func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) }),
	)

	_, err := cb.Execute(fail)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, Closed, cb.State())

	_, err = cb.Execute(fail)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, Open, cb.State())

	_, err = cb.Execute(ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	now = now.Add(11 * time.Second)
	assert.Equal(t, HalfOpen, cb.State())

	res, err := cb.Execute(ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, Closed, cb.State())

	assert.Equal(t, []string{"Closed->Open", "Open->Half-Open", "Half-Open->Closed"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := New(1, 2, time.Second, WithClock(func() time.Time { return now }))

	_, _ = cb.Execute(fail)
	assert.Equal(t, Open, cb.State())

	now = now.Add(2 * time.Second)
	_, err := cb.Execute(fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, Open, cb.State())

	_, err = cb.Execute(ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(2, 1, time.Minute)
	_, _ = cb.Execute(fail)
	_, _ = cb.Execute(ok)
	_, _ = cb.Execute(fail)
	assert.Equal(t, Closed, cb.State())
}
