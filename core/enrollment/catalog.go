package enrollment

import (
	"context"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/course"
)

// ModuleReader reads the modules of a course.
type ModuleReader interface {
	QueryModules(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Module, error)
}

// CatalogIndex resolves the lessons currently in a course from its modules. Nothing is cached.
type CatalogIndex struct {
	modules ModuleReader
}

var _ LessonCatalog = (*CatalogIndex)(nil) // interface compliance check

func NewCatalogIndex(modules ModuleReader) *CatalogIndex {
	return &CatalogIndex{modules: modules}
}

// LessonIDsForCourse returns the ids of every lesson of every module of the course.
// A course without modules, or an unknown one, has an empty set.
func (idx *CatalogIndex) LessonIDsForCourse(ctx context.Context, courseID string) (LessonSet, error) {
	mods, err := idx.modules.QueryModules(ctx, courseID)
	if err != nil {
		return nil, core.NewStoreError(err, "querying course modules")
	}
	set := make(LessonSet)
	for _, mod := range mods {
		for _, lesson := range mod.Lessons {
			set[lesson.ID] = struct{}{}
		}
	}
	return set, nil
}
