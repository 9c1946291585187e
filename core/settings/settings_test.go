package settings

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursehub/core"
)

type repoMock struct {
	toggles map[EventType]bool
	saves   int
}

func (r *repoMock) GetToggles(context.Context, ...core.DBExecutor) (map[EventType]bool, error) {
	out := make(map[EventType]bool, len(r.toggles))
	for evt, on := range r.toggles {
		out[evt] = on
	}
	return out, nil
}

func (r *repoMock) SaveToggles(_ context.Context, toggles map[EventType]bool, _ ...core.DBExecutor) error {
	r.saves++
	if r.toggles == nil {
		r.toggles = make(map[EventType]bool)
	}
	for evt, on := range toggles {
		r.toggles[evt] = on
	}
	return nil
}

func TestNewSnapshot(t *testing.T) {
	snap := NewSnapshot(nil)
	assert.True(t, snap.Enabled(CourseEnrolled))
	assert.False(t, snap.Enabled(CourseCompleted))
	assert.False(t, snap.Enabled("lol"))

	toggles := map[EventType]bool{CourseEnrolled: false, "lol": true}
	snap = NewSnapshot(toggles)
	assert.False(t, snap.Enabled(CourseEnrolled))
	assert.False(t, snap.Enabled("lol"))

	// later changes to the source map do not leak into the snapshot
	toggles[CourseEnrolled] = true
	assert.False(t, snap.Enabled(CourseEnrolled))

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"emailNotifications":{"course_enrolled":false,"course_completed":false}}`, string(data))
}

func TestService_Update(t *testing.T) {
	repo := &repoMock{}
	svc := NewService(repo)
	ctx := context.Background()

	t.Run("unknown event type", func(t *testing.T) {
		_, err := svc.Update(ctx, UpdateSettings{EmailNotifications: map[EventType]bool{"lol": true, CourseEnrolled: false}})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr))
		require.Len(t, verr.Fields, 1)
		assert.Equal(t, "emailNotifications.lol", verr.Fields[0].Field)
		assert.Equal(t, 0, repo.saves)
	})

	t.Run("partial update", func(t *testing.T) {
		snap, err := svc.Update(ctx, UpdateSettings{EmailNotifications: map[EventType]bool{CourseCompleted: true}})
		require.NoError(t, err)
		assert.True(t, snap.Enabled(CourseEnrolled))
		assert.True(t, snap.Enabled(CourseCompleted))
	})

	t.Run("empty update", func(t *testing.T) {
		snap, err := svc.Update(ctx, UpdateSettings{})
		require.NoError(t, err)
		assert.True(t, snap.Enabled(CourseCompleted))
		assert.Equal(t, 1, repo.saves)
	})
}
