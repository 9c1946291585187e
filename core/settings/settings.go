// Package settings holds the global notification toggles.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/coursehub/core"
)

type EventType string

// Notification event types
const (
	CourseEnrolled  EventType = "course_enrolled"
	CourseCompleted EventType = "course_completed"
)

// Defaults are the toggles used for event types never saved.
var Defaults = map[EventType]bool{
	CourseEnrolled:  true,
	CourseCompleted: false,
}

func IsKnown(evt EventType) bool {
	_, ok := Defaults[evt]
	return ok
}

// Snapshot is an immutable copy of the email notification toggles, read once per notification attempt.
type Snapshot struct {
	toggles map[EventType]bool
}

// NewSnapshot merges toggles over Defaults. Unknown event types are ignored.
func NewSnapshot(toggles map[EventType]bool) Snapshot {
	merged := make(map[EventType]bool, len(Defaults))
	for evt, on := range Defaults {
		merged[evt] = on
	}
	for evt, on := range toggles {
		if IsKnown(evt) {
			merged[evt] = on
		}
	}
	return Snapshot{toggles: merged}
}

func (s Snapshot) Enabled(evt EventType) bool {
	return s.toggles[evt]
}

// EmailNotifications returns a copy of the toggles.
func (s Snapshot) EmailNotifications() map[EventType]bool {
	out := make(map[EventType]bool, len(s.toggles))
	for evt, on := range s.toggles {
		out[evt] = on
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EmailNotifications map[EventType]bool `json:"emailNotifications"`
	}{s.toggles})
}

type (
	Repository interface {
		// GetToggles returns the saved toggles; event types never saved are absent.
		GetToggles(ctx context.Context, exec ...core.DBExecutor) (map[EventType]bool, error)
		SaveToggles(ctx context.Context, toggles map[EventType]bool, exec ...core.DBExecutor) error
	}

	Service interface {
		Snapshot(ctx context.Context) (Snapshot, error)
		Update(ctx context.Context, upd UpdateSettings) (Snapshot, error)
	}

	service struct {
		repo Repository
	}
)

// UpdateSettings contains the toggles to change; absent event types keep their value.
type UpdateSettings struct {
	EmailNotifications map[EventType]bool `json:"emailNotifications"`
}

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Snapshot(ctx context.Context) (Snapshot, error) {
	toggles, err := svc.repo.GetToggles(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(toggles), nil
}

func (svc *service) Update(ctx context.Context, upd UpdateSettings) (Snapshot, error) {
	if err := upd.Validate(); err != nil {
		return Snapshot{}, err
	}
	if len(upd.EmailNotifications) > 0 {
		if err := svc.repo.SaveToggles(ctx, upd.EmailNotifications); err != nil {
			return Snapshot{}, err
		}
	}
	return svc.Snapshot(ctx)
}

// Validate rejects unknown event types.
func (upd UpdateSettings) Validate() error {
	unknown := make([]string, 0)
	for evt := range upd.EmailNotifications {
		if !IsKnown(evt) {
			unknown = append(unknown, string(evt))
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Strings(unknown)
	flds := make([]core.FieldError, 0, len(unknown))
	for _, evt := range unknown {
		flds = append(flds, core.FieldError{
			Field: "emailNotifications." + evt,
			Error: fmt.Sprintf("unknown event type %q", evt),
		})
	}
	return core.NewValidationError(errors.New("unknown event type"), flds...)
}
