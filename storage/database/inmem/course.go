package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.seq++
	repo.db.courses[crs.ID] = &courseRow{Course: crs, seq: repo.db.seq}
	return crs, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]*courseRow, 0, len(repo.db.courses))
	for _, row := range repo.db.courses {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.Course)
	}
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if row, ok := repo.db.courses[id]; ok {
		return row.Course, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.courses, id)
	for modID, mod := range repo.db.modules {
		if mod.CourseID == id {
			delete(repo.db.modules, modID)
		}
	}
	return nil
}

func (repo *courseRepository) CreateModule(_ context.Context, mod course.Module, _ ...core.DBExecutor) (course.Module, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[mod.CourseID]; !ok {
		return course.Module{}, course.ErrNotFound
	}
	stored := copyModule(mod)
	repo.db.modules[mod.ID] = &stored
	return copyModule(stored), nil
}

func (repo *courseRepository) GetModule(_ context.Context, id string, _ ...core.DBExecutor) (course.Module, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if mod, ok := repo.db.modules[id]; ok {
		return copyModule(*mod), nil
	}
	return course.Module{}, course.ErrModuleNotFound
}

func (repo *courseRepository) UpdateModule(_ context.Context, mod course.Module, _ ...core.DBExecutor) (course.Module, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.modules[mod.ID]
	if !ok {
		return course.Module{}, course.ErrModuleNotFound
	}
	orig.Title = mod.Title
	orig.Lessons = copyModule(mod).Lessons
	orig.UpdatedAt = mod.UpdatedAt
	return copyModule(*orig), nil
}

func (repo *courseRepository) DeleteModule(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.modules[id]; !ok {
		return course.ErrModuleNotFound
	}
	delete(repo.db.modules, id)
	return nil
}

func (repo *courseRepository) QueryModules(_ context.Context, courseID string, _ ...core.DBExecutor) ([]course.Module, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	mods := make([]course.Module, 0)
	for _, mod := range repo.db.modules {
		if mod.CourseID == courseID {
			mods = append(mods, copyModule(*mod))
		}
	}
	sort.Slice(mods, func(i, j int) bool {
		if mods[i].Position != mods[j].Position {
			return mods[i].Position < mods[j].Position
		}
		return mods[i].CreatedAt.Before(mods[j].CreatedAt)
	})
	return mods, nil
}

func copyModule(mod course.Module) course.Module {
	lessons := make([]course.Lesson, len(mod.Lessons))
	copy(lessons, mod.Lessons)
	mod.Lessons = lessons
	return mod
}
