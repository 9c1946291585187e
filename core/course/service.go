package course

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/coursehub/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("course not found")
	ErrModuleNotFound = core.NewNotFoundError("module not found")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateModule(ctx context.Context, mod Module, exec ...core.DBExecutor) (Module, error)
		GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (Module, error)
		UpdateModule(ctx context.Context, mod Module, exec ...core.DBExecutor) (Module, error)
		DeleteModule(ctx context.Context, id string, exec ...core.DBExecutor) error
		// QueryModules returns the course's modules ordered by position, each with its ordered lessons.
		// An unknown course yields an empty list.
		QueryModules(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Module, error)
	}

	// DeletionHook is invoked, inside the deleting transaction, whenever a course is deleted.
	DeletionHook interface {
		OnCourseDeleted(ctx context.Context, courseID string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Query(ctx context.Context) ([]Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		Delete(ctx context.Context, id string) error

		AddModule(ctx context.Context, courseID string, nm NewModule) (Module, error)
		UpdateModule(ctx context.Context, moduleID string, um UpdateModule) (Module, error)
		DeleteModule(ctx context.Context, moduleID string) error
		QueryModules(ctx context.Context, courseID string) ([]Module, error)
	}

	service struct {
		tx   core.Transactor
		repo Repository
		hook DeletionHook
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(tx core.Transactor, repo Repository, hook DeletionHook) Service {
	return &service{
		tx:   tx,
		repo: repo,
		hook: hook,
	}
}

func (svc *service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := nowFunc().UTC()
	return svc.repo.CreateCourse(ctx, Course{
		ID:          uuid.New().String(),
		Title:       nc.Title,
		Description: nc.Description,
		Image:       nc.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) Query(ctx context.Context) ([]Course, error) {
	return svc.repo.QueryCourses(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

// Delete removes the course, its modules and every enrollment in it.
func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.DeleteCourse(ctx, id, exec); err != nil {
			return err
		}
		if svc.hook == nil {
			return nil
		}
		return errors.Wrap(svc.hook.OnCourseDeleted(ctx, id, exec), "running course deletion hook")
	})
}

func (svc *service) AddModule(ctx context.Context, courseID string, nm NewModule) (Module, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return Module{}, err
	}

	position := 0
	if nm.Position != nil {
		position = *nm.Position
	} else {
		mods, err := svc.repo.QueryModules(ctx, courseID)
		if err != nil {
			return Module{}, err
		}
		position = len(mods)
	}

	now := nowFunc().UTC()
	return svc.repo.CreateModule(ctx, Module{
		ID:        uuid.New().String(),
		CourseID:  courseID,
		Title:     nm.Title,
		Position:  position,
		Lessons:   buildLessons(nm.Lessons),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) UpdateModule(ctx context.Context, moduleID string, um UpdateModule) (Module, error) {
	mod, err := svc.repo.GetModule(ctx, moduleID)
	if err != nil {
		return Module{}, err
	}
	mod.Title = um.Title
	mod.Lessons = buildLessons(um.Lessons)
	mod.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateModule(ctx, mod)
}

func (svc *service) DeleteModule(ctx context.Context, moduleID string) error {
	return svc.repo.DeleteModule(ctx, moduleID)
}

func (svc *service) QueryModules(ctx context.Context, courseID string) ([]Module, error) {
	return svc.repo.QueryModules(ctx, courseID)
}

func buildLessons(nls []NewLesson) []Lesson {
	lessons := make([]Lesson, 0, len(nls))
	for i, nl := range nls {
		id := nl.ID
		if id == "" {
			id = uuid.New().String()
		}
		lessons = append(lessons, Lesson{
			ID:         id,
			Title:      nl.Title,
			ContentURL: nl.ContentURL,
			Position:   i,
		})
	}
	return lessons
}

// validateLessons checks that the supplied lesson ids are unique within the module.
func validateLessons(nls []NewLesson) error {
	seen := make(map[string]struct{}, len(nls))
	var flds []core.FieldError
	for i, nl := range nls {
		if nl.ID == "" {
			continue
		}
		if _, dup := seen[nl.ID]; dup {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("lessons[%d].id", i),
				Error: "duplicate lesson id",
			})
		}
		seen[nl.ID] = struct{}{}
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("duplicate lesson id"), flds...)
	}
	return nil
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Image = core.CleanString(nc.Image)
	return validate.Struct(nc)
}

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	cleanLessons(nm.Lessons)
	if err := validate.Struct(nm); err != nil {
		return err
	}
	return validateLessons(nm.Lessons)
}

func (um *UpdateModule) Validate(validate *validator.Validate) error {
	um.Title = core.CleanString(um.Title)
	cleanLessons(um.Lessons)
	if err := validate.Struct(um); err != nil {
		return err
	}
	return validateLessons(um.Lessons)
}

func cleanLessons(nls []NewLesson) {
	for i := range nls {
		nls[i].ID = core.CleanString(nls[i].ID)
		nls[i].Title = core.CleanString(nls[i].Title)
		nls[i].ContentURL = core.CleanString(nls[i].ContentURL)
	}
}
