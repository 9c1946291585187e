package enrollment

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/settings"
	"github.com/trezcool/coursehub/core/user"
)

var (
	// errors
	ErrUserNotFound       = user.ErrNotFound
	ErrEnrollmentNotFound = core.NewNotFoundError("enrollment not found")
	ErrAlreadyEnrolled    = core.NewConflictError("already enrolled in this course")
	ErrUnknownLesson      = errors.New("lesson does not belong to this course")
	// ErrStaleRecord is returned by Repository.ReplaceEnrollment when the record changed since it was read.
	ErrStaleRecord = errors.New("enrollment was modified concurrently")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		FindEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Record, error)
		// ListEnrollments returns the user's records in enrollment order.
		ListEnrollments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Record, error)
		AppendEnrollment(ctx context.Context, userID string, rec Record, exec ...core.DBExecutor) error
		// ReplaceEnrollment stores upd.CompletedLessons and upd.Progress if the record is still at upd.Version.
		// It returns the stored record, with its new version.
		ReplaceEnrollment(ctx context.Context, userID, courseID string, upd Update, exec ...core.DBExecutor) (Record, error)
		// CascadeDeleteByCourse removes the course's record from every user and returns how many were removed.
		CascadeDeleteByCourse(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error)
	}

	LessonCatalog interface {
		LessonIDsForCourse(ctx context.Context, courseID string) (LessonSet, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	SettingsReader interface {
		Snapshot(ctx context.Context) (settings.Snapshot, error)
	}

	// Notifier delivers one notification, gated by snap.
	Notifier interface {
		Notify(ctx context.Context, snap settings.Snapshot, recipient mail.Address, evt settings.EventType, data map[string]interface{}) error
	}

	// Dispatcher runs tasks detached from the caller. Dispatch returns immediately and task errors never reach the caller.
	Dispatcher interface {
		Dispatch(name string, task func(ctx context.Context) error)
	}

	// Observer is told about self-healing writes and concurrent update retries.
	Observer interface {
		ObserveSelfHeal(pruned int)
		ObserveStaleRetry()
	}

	Service interface {
		Enroll(ctx context.Context, userID string, ne NewEnrollment) ([]Record, error)
		ListEnrollments(ctx context.Context, userID string) ([]Record, error)
		GetProgress(ctx context.Context, userID, courseID string) (Progress, error)
		CompleteLesson(ctx context.Context, userID string, cl CompleteLesson) (Progress, error)
		OnCourseDeleted(ctx context.Context, courseID string, exec ...core.DBExecutor) error
	}

	Deps struct {
		Conf       *core.Config
		Validate   *validator.Validate
		Repo       Repository
		Catalog    LessonCatalog
		Users      UserFinder
		Settings   SettingsReader
		Notifier   Notifier
		Dispatcher Dispatcher
		Observer   Observer // optional
	}

	service struct {
		strict     bool
		maxRetries int
		validate   *validator.Validate
		repo       Repository
		catalog    LessonCatalog
		users      UserFinder
		settings   SettingsReader
		notifier   Notifier
		dispatcher Dispatcher
		observer   Observer
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(deps Deps) Service {
	svc := &service{
		strict:     deps.Conf.Enrollment.StrictCompletion,
		maxRetries: deps.Conf.Enrollment.MaxRetries,
		validate:   deps.Validate,
		repo:       deps.Repo,
		catalog:    deps.Catalog,
		users:      deps.Users,
		settings:   deps.Settings,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		observer:   deps.Observer,
	}
	if svc.maxRetries < 0 {
		svc.maxRetries = 0
	}
	if svc.observer == nil {
		svc.observer = nopObserver{}
	}
	return svc
}

func (svc *service) Enroll(ctx context.Context, userID string, ne NewEnrollment) ([]Record, error) {
	if err := ne.Validate(svc.validate); err != nil {
		return nil, err
	}

	rec := Record{
		CourseID:         ne.CourseID,
		Title:            ne.Title,
		Image:            ne.Image,
		EnrolledAt:       nowFunc().UTC(),
		Progress:         0,
		CompletedLessons: []string{},
	}
	if err := svc.repo.AppendEnrollment(ctx, userID, rec); err != nil {
		return nil, err
	}

	recs, err := svc.repo.ListEnrollments(ctx, userID)
	if err != nil {
		return nil, err
	}

	svc.notify(userID, settings.CourseEnrolled, courseData(rec))
	return recs, nil
}

func (svc *service) ListEnrollments(ctx context.Context, userID string) ([]Record, error) {
	return svc.repo.ListEnrollments(ctx, userID)
}

// GetProgress reconciles the record against the course's current lessons and stores the result if it changed.
func (svc *service) GetProgress(ctx context.Context, userID, courseID string) (Progress, error) {
	_, after, err := svc.update(ctx, userID, courseID, func(rec Record) (Record, bool, error) {
		valid, err := svc.catalog.LessonIDsForCourse(ctx, courseID)
		if err != nil {
			return Record{}, false, err
		}
		next, changed := Reconcile(rec, valid)
		if changed {
			svc.observer.ObserveSelfHeal(len(rec.CompletedLessons) - len(next.CompletedLessons))
		}
		return next, changed, nil
	})
	if err != nil {
		return Progress{}, err
	}
	return after.AsProgress(), nil
}

// CompleteLesson adds the lesson to the record's completed lessons and always stores the result.
//
// When completion is strict the lesson must belong to the course, the progress is computed against the
// course's current lessons and stale lessons are pruned.
// Otherwise cl.TotalLessons is trusted and the lesson is not checked.
func (svc *service) CompleteLesson(ctx context.Context, userID string, cl CompleteLesson) (Progress, error) {
	if err := cl.Validate(svc.validate); err != nil {
		return Progress{}, err
	}

	before, after, err := svc.update(ctx, userID, cl.CourseID, func(rec Record) (Record, bool, error) {
		if !svc.strict {
			return MarkComplete(rec, cl.LessonID, cl.TotalLessons), true, nil
		}

		valid, err := svc.catalog.LessonIDsForCourse(ctx, cl.CourseID)
		if err != nil {
			return Record{}, false, err
		}
		if !valid.Has(cl.LessonID) {
			return Record{}, false, core.NewValidationError(
				ErrUnknownLesson,
				core.FieldError{Field: "lessonId", Error: ErrUnknownLesson.Error()},
			)
		}
		next, _ := Reconcile(MarkComplete(rec, cl.LessonID, valid.Len()), valid)
		return next, true, nil
	})
	if err != nil {
		return Progress{}, err
	}

	if before.Progress < 100 && after.Progress == 100 {
		svc.notify(userID, settings.CourseCompleted, courseData(after))
	}
	return after.AsProgress(), nil
}

func (svc *service) OnCourseDeleted(ctx context.Context, courseID string, exec ...core.DBExecutor) error {
	_, err := svc.repo.CascadeDeleteByCourse(ctx, courseID, exec...)
	return err
}

// update loads the record, applies fn and, when fn reports a change, stores the result conditioned on the
// loaded version. A stale write reloads the record and runs fn again, at most maxRetries times.
func (svc *service) update(
	ctx context.Context,
	userID, courseID string,
	fn func(rec Record) (next Record, changed bool, err error),
) (before, after Record, err error) {
	for attempt := 0; ; attempt++ {
		before, err = svc.repo.FindEnrollment(ctx, userID, courseID)
		if err != nil {
			return Record{}, Record{}, err
		}

		next, changed, err := fn(before)
		if err != nil {
			return Record{}, Record{}, err
		}
		if !changed {
			return before, next, nil
		}

		after, err = svc.repo.ReplaceEnrollment(ctx, userID, courseID, next.update())
		if err == nil {
			return before, after, nil
		}
		if errors.Cause(err) != ErrStaleRecord {
			return Record{}, Record{}, err
		}
		if attempt >= svc.maxRetries {
			return Record{}, Record{}, core.NewStoreError(err, "updating enrollment")
		}
		svc.observer.ObserveStaleRetry()
	}
}

// notify sends evt to the user in the background. The settings are read once, when the task runs.
func (svc *service) notify(userID string, evt settings.EventType, data map[string]interface{}) {
	if svc.dispatcher == nil || svc.notifier == nil {
		return
	}
	svc.dispatcher.Dispatch(string(evt), func(ctx context.Context) error {
		usr, err := svc.users.GetByID(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "getting recipient")
		}
		snap, err := svc.settings.Snapshot(ctx)
		if err != nil {
			return errors.Wrap(err, "reading settings")
		}
		recipient := mail.Address{Name: usr.Name, Address: usr.Email}
		return svc.notifier.Notify(ctx, snap, recipient, evt, data)
	})
}

func courseData(rec Record) map[string]interface{} {
	return map[string]interface{}{
		"CourseID":    rec.CourseID,
		"CourseTitle": rec.Title,
		"Progress":    rec.Progress,
	}
}

type nopObserver struct{}

func (nopObserver) ObserveSelfHeal(int) {}
func (nopObserver) ObserveStaleRetry()  {}
