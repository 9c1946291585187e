package enrollment_test

import (
	"context"
	"net/mail"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/course"
	"github.com/trezcool/coursehub/core/enrollment"
	"github.com/trezcool/coursehub/core/settings"
	"github.com/trezcool/coursehub/core/user"
	"github.com/trezcool/coursehub/storage/database/inmem"
)

type sentNotification struct {
	recipient mail.Address
	evt       settings.EventType
	data      map[string]interface{}
}

// notifierMock records the notifications allowed by the settings snapshot.
type notifierMock struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *notifierMock) Notify(_ context.Context, snap settings.Snapshot, recipient mail.Address, evt settings.EventType, data map[string]interface{}) error {
	if !snap.Enabled(evt) {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{recipient: recipient, evt: evt, data: data})
	return nil
}

func (n *notifierMock) events() []settings.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	evts := make([]settings.EventType, 0, len(n.sent))
	for _, s := range n.sent {
		evts = append(evts, s.evt)
	}
	return evts
}

type observerMock struct {
	selfHeals, staleRetries int
}

func (o *observerMock) ObserveSelfHeal(int) { o.selfHeals++ }
func (o *observerMock) ObserveStaleRetry()  { o.staleRetries++ }

type env struct {
	ctx      context.Context
	db       *inmemdb.DB
	repo     enrollment.Repository
	usrSvc   user.Service
	crsSvc   course.Service
	setSvc   settings.Service
	svc      enrollment.Service
	notifier *notifierMock
	observer *observerMock
}

func setup(t *testing.T, strict bool, wrap ...func(enrollment.Repository) enrollment.Repository) *env {
	t.Helper()
	conf := &core.Config{}
	conf.Enrollment.StrictCompletion = strict
	conf.Enrollment.MaxRetries = 3

	db := inmemdb.Open()
	e := &env{
		ctx:      context.Background(),
		db:       db,
		repo:     inmemdb.NewEnrollmentRepository(db),
		usrSvc:   user.NewService(inmemdb.NewUserRepository(db)),
		setSvc:   settings.NewService(inmemdb.NewSettingsRepository(db)),
		notifier: &notifierMock{},
		observer: &observerMock{},
	}
	if len(wrap) > 0 {
		e.repo = wrap[0](e.repo)
	}

	validate, _ := core.NewValidator()
	crsRepo := inmemdb.NewCourseRepository(db)
	e.svc = enrollment.NewServiceMock(enrollment.Deps{
		Conf:     conf,
		Validate: validate,
		Repo:     e.repo,
		Catalog:  enrollment.NewCatalogIndex(crsRepo),
		Users:    e.usrSvc,
		Settings: e.setSvc,
		Notifier: e.notifier,
		Observer: e.observer,
	})
	e.crsSvc = course.NewService(inmemdb.NewTransactor(), crsRepo, e.svc)
	return e
}

func (e *env) createCourse(t *testing.T, lessonIDs ...string) course.Course {
	t.Helper()
	crs, err := e.crsSvc.Create(e.ctx, course.NewCourse{Title: "Go 101"})
	require.NoError(t, err)
	if len(lessonIDs) > 0 {
		e.addModule(t, crs.ID, lessonIDs...)
	}
	return crs
}

func (e *env) addModule(t *testing.T, courseID string, lessonIDs ...string) course.Module {
	t.Helper()
	lessons := make([]course.NewLesson, 0, len(lessonIDs))
	for _, id := range lessonIDs {
		lessons = append(lessons, course.NewLesson{ID: id, Title: "Lesson " + id})
	}
	mod, err := e.crsSvc.AddModule(e.ctx, courseID, course.NewModule{Title: "Module", Lessons: lessons})
	require.NoError(t, err)
	return mod
}

func (e *env) enroll(t *testing.T, usr user.User, crs course.Course) {
	t.Helper()
	_, err := e.svc.Enroll(e.ctx, usr.ID, enrollment.NewEnrollment{CourseID: crs.ID, Title: crs.Title})
	require.NoError(t, err)
}

func TestService_Enroll(t *testing.T) {
	e := setup(t, true)
	usr := user.CreateTestUser(t, e.usrSvc, "Jane", "jane_doe")
	crs := e.createCourse(t, "L1")

	t.Run("missing fields", func(t *testing.T) {
		_, err := e.svc.Enroll(e.ctx, usr.ID, enrollment.NewEnrollment{})
		assert.Error(t, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := e.svc.Enroll(e.ctx, "nobody", enrollment.NewEnrollment{CourseID: crs.ID, Title: crs.Title})
		assert.Equal(t, enrollment.ErrUserNotFound, errors.Cause(err))
	})

	t.Run("enrolls", func(t *testing.T) {
		recs, err := e.svc.Enroll(e.ctx, usr.ID, enrollment.NewEnrollment{CourseID: crs.ID, Title: crs.Title, Image: "https://img.test/go.png"})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, crs.ID, recs[0].CourseID)
		assert.Equal(t, "https://img.test/go.png", recs[0].Image)
		assert.Equal(t, 0, recs[0].Progress)
		assert.Empty(t, recs[0].CompletedLessons)
		assert.False(t, recs[0].EnrolledAt.IsZero())

		require.Len(t, e.notifier.sent, 1)
		sent := e.notifier.sent[0]
		assert.Equal(t, settings.CourseEnrolled, sent.evt)
		assert.Equal(t, usr.Email, sent.recipient.Address)
		assert.Equal(t, crs.ID, sent.data["CourseID"])
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := e.svc.Enroll(e.ctx, usr.ID, enrollment.NewEnrollment{CourseID: crs.ID, Title: crs.Title})
		assert.Equal(t, enrollment.ErrAlreadyEnrolled, errors.Cause(err))
		_, isConflict := errors.Cause(err).(*core.ConflictError)
		assert.True(t, isConflict)

		recs, err := e.svc.ListEnrollments(e.ctx, usr.ID)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("keeps enrollment order", func(t *testing.T) {
		other := e.createCourse(t)
		recs, err := e.svc.Enroll(e.ctx, usr.ID, enrollment.NewEnrollment{CourseID: other.ID, Title: other.Title})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, crs.ID, recs[0].CourseID)
		assert.Equal(t, other.ID, recs[1].CourseID)
	})
}

func TestService_Enroll_NotificationDisabled(t *testing.T) {
	e := setup(t, true)
	usr := user.CreateTestUser(t, e.usrSvc, "Jane", "jane_doe")
	crs := e.createCourse(t)

	_, err := e.setSvc.Update(e.ctx, settings.UpdateSettings{
		EmailNotifications: map[settings.EventType]bool{settings.CourseEnrolled: false},
	})
	require.NoError(t, err)

	e.enroll(t, usr, crs)
	assert.Empty(t, e.notifier.sent)
}

func TestService_GetProgress(t *testing.T) {
	e := setup(t, true)
	usr := user.CreateTestUser(t, e.usrSvc, "Jane", "jane_doe")
	crs := e.createCourse(t)
	mod := e.addModule(t, crs.ID, "L1", "L2", "L3", "L4")
	e.enroll(t, usr, crs)

	t.Run("unknown user", func(t *testing.T) {
		_, err := e.svc.GetProgress(e.ctx, "nobody", crs.ID)
		assert.Equal(t, enrollment.ErrUserNotFound, errors.Cause(err))
	})

	t.Run("not enrolled", func(t *testing.T) {
		_, err := e.svc.GetProgress(e.ctx, usr.ID, "lol")
		assert.Equal(t, enrollment.ErrEnrollmentNotFound, errors.Cause(err))
	})

	for _, lessonID := range []string{"L1", "L2"} {
		_, err := e.svc.CompleteLesson(e.ctx, usr.ID, enrollment.CompleteLesson{CourseID: crs.ID, LessonID: lessonID, TotalLessons: 4})
		require.NoError(t, err)
	}

	t.Run("consistent record is not rewritten", func(t *testing.T) {
		before, err := e.repo.FindEnrollment(e.ctx, usr.ID, crs.ID)
		require.NoError(t, err)

		prog, err := e.svc.GetProgress(e.ctx, usr.ID, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, prog.Progress)
		assert.Equal(t, []string{"L1", "L2"}, prog.CompletedLessons)

		after, err := e.repo.FindEnrollment(e.ctx, usr.ID, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
	})

	t.Run("lesson deleted from the catalog", func(t *testing.T) {
		_, err := e.crsSvc.UpdateModule(e.ctx, mod.ID, course.UpdateModule{
			Title:   mod.Title,
			Lessons: []course.NewLesson{{ID: "L1", Title: "1"}, {ID: "L2", Title: "2"}, {ID: "L4", Title: "4"}},
		})
		require.NoError(t, err)

		prog, err := e.svc.GetProgress(e.ctx, usr.ID, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, 67, prog.Progress)
		assert.Equal(t, []string{"L1", "L2"}, prog.CompletedLessons)

		stored, err := e.repo.FindEnrollment(e.ctx, usr.ID, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, 67, stored.Progress)
		assert.Equal(t, 1, e.observer.selfHeals)
	})

	t.Run("completed lesson deleted from the catalog", func(t *testing.T) {
		_, err := e.crsSvc.UpdateModule(e.ctx, mod.ID, course.UpdateModule{
			Title:   mod.Title,
			Lessons: []course.NewLesson{{ID: "L1", Title: "1"}, {ID: "L4", Title: "4"}},
		})
		require.NoError(t, err)

		prog, err := e.svc.GetProgress(e.ctx, usr.ID, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, prog.Progress)
		assert.Equal(t, []string{"L1"}, prog.CompletedLessons)
	})

	t.Run("all modules deleted", func(t *testing.T) {
		require.NoError(t, e.crsSvc.DeleteModule(e.ctx, mod.ID))

		prog, err := e.svc.GetProgress(e.ctx, usr.ID, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, prog.Progress)
		assert.Empty(t, prog.CompletedLessons)
	})
}

func TestService_CompleteLesson_Strict(t *testing.T) {
	e := setup(t, true)
	usr := user.CreateTestUser(t, e.usrSvc, "Jane", "jane_doe")
	crs := e.createCourse(t, "L1", "L2", "L3")
	e.enroll(t, usr, crs)

	complete := func(lessonID string, hint int) (enrollment.Progress, error) {
		return e.svc.CompleteLesson(e.ctx, usr.ID, enrollment.CompleteLesson{CourseID: crs.ID, LessonID: lessonID, TotalLessons: hint})
	}

	t.Run("missing fields", func(t *testing.T) {
		_, err := e.svc.CompleteLesson(e.ctx, usr.ID, enrollment.CompleteLesson{CourseID: crs.ID})
		assert.Error(t, err)
	})

	t.Run("not enrolled", func(t *testing.T) {
		_, err := e.svc.CompleteLesson(e.ctx, usr.ID, enrollment.CompleteLesson{CourseID: "lol", LessonID: "L1"})
		assert.Equal(t, enrollment.ErrEnrollmentNotFound, errors.Cause(err))
	})

	t.Run("unknown lesson", func(t *testing.T) {
		_, err := complete("nope", 3)
		verr, ok := errors.Cause(err).(*core.ValidationError)
		require.True(t, ok)
		require.Len(t, verr.Fields, 1)
		assert.Equal(t, "lessonId", verr.Fields[0].Field)
	})

	t.Run("catalog size wins over the hint", func(t *testing.T) {
		prog, err := complete("L1", 10)
		require.NoError(t, err)
		assert.Equal(t, 33, prog.Progress)
	})

	t.Run("idempotent", func(t *testing.T) {
		prog, err := complete("L1", 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"L1"}, prog.CompletedLessons)
		assert.Equal(t, 33, prog.Progress)
	})

	t.Run("course completed", func(t *testing.T) {
		_, err := e.setSvc.Update(e.ctx, settings.UpdateSettings{
			EmailNotifications: map[settings.EventType]bool{settings.CourseCompleted: true},
		})
		require.NoError(t, err)

		_, err = complete("L2", 3)
		require.NoError(t, err)
		prog, err := complete("L3", 3)
		require.NoError(t, err)
		assert.Equal(t, 100, prog.Progress)

		// completing again does not notify twice
		_, err = complete("L3", 3)
		require.NoError(t, err)
		assert.Equal(t, []settings.EventType{settings.CourseEnrolled, settings.CourseCompleted}, e.notifier.events())
	})
}

func TestService_CompleteLesson_Lenient(t *testing.T) {
	e := setup(t, false)
	usr := user.CreateTestUser(t, e.usrSvc, "Jane", "jane_doe")
	crs := e.createCourse(t, "L1", "L2", "L3", "L4")
	e.enroll(t, usr, crs)

	complete := func(lessonID string, hint int) enrollment.Progress {
		prog, err := e.svc.CompleteLesson(e.ctx, usr.ID, enrollment.CompleteLesson{CourseID: crs.ID, LessonID: lessonID, TotalLessons: hint})
		require.NoError(t, err)
		return prog
	}

	assert.Equal(t, 25, complete("L1", 4).Progress)
	assert.Equal(t, 50, complete("L2", 4).Progress)

	// the hint is trusted and the lesson is not checked
	prog := complete("ghost", 4)
	assert.Equal(t, 75, prog.Progress)
	assert.Equal(t, []string{"L1", "L2", "ghost"}, prog.CompletedLessons)

	// the self-healing read prunes it
	healed, err := e.svc.GetProgress(e.ctx, usr.ID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, healed.Progress)
	assert.Equal(t, []string{"L1", "L2"}, healed.CompletedLessons)

	// a zero hint counts as one lesson
	assert.Equal(t, 100, complete("L3", 0).Progress)
}

func TestService_OnCourseDeleted(t *testing.T) {
	e := setup(t, true)
	jane := user.CreateTestUser(t, e.usrSvc, "Jane", "jane_doe")
	john := user.CreateTestUser(t, e.usrSvc, "John", "john_doe")
	doomed := e.createCourse(t, "L1")
	kept := e.createCourse(t, "K1")

	e.enroll(t, jane, doomed)
	e.enroll(t, jane, kept)
	e.enroll(t, john, doomed)

	require.NoError(t, e.crsSvc.Delete(e.ctx, doomed.ID))

	recs, err := e.svc.ListEnrollments(e.ctx, jane.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, kept.ID, recs[0].CourseID)

	recs, err = e.svc.ListEnrollments(e.ctx, john.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// no enrollment left is not an error
	assert.NoError(t, e.svc.OnCourseDeleted(e.ctx, doomed.ID))
}

// staleRepo fails the first `stale` replacements with ErrStaleRecord.
type staleRepo struct {
	enrollment.Repository
	stale int
	calls int
}

func (r *staleRepo) ReplaceEnrollment(ctx context.Context, userID, courseID string, upd enrollment.Update, exec ...core.DBExecutor) (enrollment.Record, error) {
	r.calls++
	if r.calls <= r.stale {
		return enrollment.Record{}, enrollment.ErrStaleRecord
	}
	return r.Repository.ReplaceEnrollment(ctx, userID, courseID, upd, exec...)
}

func TestService_StaleRetry(t *testing.T) {
	tests := []struct {
		name    string
		stale   int
		wantErr bool
	}{
		{name: "recovers", stale: 3},
		{name: "gives up", stale: 4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, true, func(repo enrollment.Repository) enrollment.Repository {
				return &staleRepo{Repository: repo, stale: tt.stale}
			})

			usr := user.CreateTestUser(t, e.usrSvc, "Jane", "jane_doe")
			crs := e.createCourse(t, "L1")
			e.enroll(t, usr, crs)

			_, err := e.svc.CompleteLesson(e.ctx, usr.ID, enrollment.CompleteLesson{CourseID: crs.ID, LessonID: "L1"})
			if tt.wantErr {
				assert.True(t, core.IsStoreError(err))
				assert.Equal(t, 3, e.observer.staleRetries)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, e.observer.staleRetries)
		})
	}
}
