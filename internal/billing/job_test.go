package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	texts []string
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, text string) error {
	n.texts = append(n.texts, text)
	return n.err
}

func newJob(s *memory.Store, n Notifier) *Job {
	return NewJob(NewProcessor(s, nil, nil), s, s, n, 72*time.Hour, nil).
		WithClock(func() time.Time { return now })
}

func TestJobRollsOverThenNotifies(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.CreateUser(context.Background(), core.User{ID: "u1", Username: "zoe", Role: core.RoleUser}))
	// Rolled from May 16 to June 16, which puts it inside the digest window.
	seedBill(t, s, "rent", "u1", "Rent", date(2025, 5, 16), 95000, true)

	n := &fakeNotifier{}
	require.NoError(t, newJob(s, n).Run(context.Background()))

	require.Len(t, n.texts, 1)
	assert.Contains(t, n.texts[0], "- 2025-06-16 Rent: 950.00 (monthly)")
}

func TestJobSkipsEmptyDigest(t *testing.T) {
	n := &fakeNotifier{}
	require.NoError(t, newJob(memory.New(), n).Run(context.Background()))
	assert.Empty(t, n.texts)
}

func TestJobWithoutNotifierOnlyLogs(t *testing.T) {
	s := memory.New()
	seedBill(t, s, "rent", "u1", "Rent", date(2025, 6, 16), 95000, true)
	assert.NoError(t, newJob(s, nil).Run(context.Background()))
}

func TestJobJoinsErrors(t *testing.T) {
	s := memory.New()
	seedBill(t, s, "rent", "u1", "Rent", date(2025, 6, 16), 95000, true)

	err := newJob(s, &fakeNotifier{err: errors.New("chat not found")}).Run(context.Background())
	assert.ErrorContains(t, err, "notify: chat not found")

	s.FailWith = errors.New("disk full")
	err = newJob(s, &fakeNotifier{}).Run(context.Background())
	assert.ErrorContains(t, err, "rollover")
	assert.ErrorContains(t, err, "digest")
}

func TestSchedule(t *testing.T) {
	job := newJob(memory.New(), nil)

	c, err := Schedule(context.Background(), "0 7 * * *", job, nil)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = Schedule(context.Background(), "every morning", job, nil)
	assert.ErrorContains(t, err, "invalid cron spec")
}
