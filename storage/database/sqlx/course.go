package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/course"
)

type courseRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Image       string    `db:"image"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row courseRow) toCourse() course.Course {
	return course.Course{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Image:       row.Image,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type moduleRow struct {
	ID        string    `db:"id"`
	CourseID  string    `db:"course_id"`
	Title     string    `db:"title"`
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type lessonRow struct {
	ID         string `db:"id"`
	ModuleID   string `db:"module_id"`
	Title      string `db:"title"`
	ContentURL string `db:"content_url"`
	Position   int    `db:"position"`
}

const (
	courseColumns = `id, title, description, image, created_at, updated_at`
	moduleColumns = `id, course_id, title, position, created_at, updated_at`
	lessonColumns = `id, module_id, title, content_url, position`
)

type courseRepository struct {
	repository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{repository{db: db}}
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	row := courseRow{
		ID:          crs.ID,
		Title:       crs.Title,
		Description: crs.Description,
		Image:       crs.Image,
		CreatedAt:   crs.CreatedAt.UTC(),
		UpdatedAt:   crs.UpdatedAt.UTC(),
	}
	_, err := sqlx.NamedExecContext(ctx, repo.getExec(exec),
		`INSERT INTO course (`+courseColumns+`) VALUES (:id, :title, :description, :image, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return course.Course{}, core.NewStoreError(err, "inserting course")
	}
	return row.toCourse(), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, exec ...core.DBExecutor) ([]course.Course, error) {
	var rows []courseRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows,
		`SELECT `+courseColumns+` FROM course ORDER BY created_at, id`); err != nil {
		return nil, core.NewStoreError(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	var row courseRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return course.Course{}, course.ErrNotFound
	} else if err != nil {
		return course.Course{}, core.NewStoreError(err, "finding course")
	}
	return row.toCourse(), nil
}

// DeleteCourse deletes the course; its modules and lessons go with it (ON DELETE CASCADE).
func (repo courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	return checkAffected(res, err, course.ErrNotFound, "deleting course")
}

func (repo courseRepository) CreateModule(ctx context.Context, mod course.Module, exec ...core.DBExecutor) (course.Module, error) {
	err := repo.withinTx(ctx, exec, func(ext sqlx.ExtContext) error {
		_, err := sqlx.NamedExecContext(ctx, ext,
			`INSERT INTO course_module (`+moduleColumns+`)
			VALUES (:id, :course_id, :title, :position, :created_at, :updated_at)`,
			moduleRow{
				ID:        mod.ID,
				CourseID:  mod.CourseID,
				Title:     mod.Title,
				Position:  mod.Position,
				CreatedAt: mod.CreatedAt.UTC(),
				UpdatedAt: mod.UpdatedAt.UTC(),
			},
		)
		if err != nil {
			if pqErrCode(err) == foreignKeyViolation {
				return course.ErrNotFound
			}
			return core.NewStoreError(err, "inserting module")
		}
		return insertLessons(ctx, ext, mod.ID, mod.Lessons)
	})
	if err != nil {
		return course.Module{}, err
	}
	return mod, nil
}

func (repo courseRepository) GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (course.Module, error) {
	ext := repo.getExec(exec)

	var row moduleRow
	err := sqlx.GetContext(ctx, ext, &row, `SELECT `+moduleColumns+` FROM course_module WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return course.Module{}, course.ErrModuleNotFound
	} else if err != nil {
		return course.Module{}, core.NewStoreError(err, "finding module")
	}

	mods, err := withLessons(ctx, ext, []moduleRow{row})
	if err != nil {
		return course.Module{}, err
	}
	return mods[0], nil
}

// UpdateModule replaces the module's title and lessons.
func (repo courseRepository) UpdateModule(ctx context.Context, mod course.Module, exec ...core.DBExecutor) (course.Module, error) {
	err := repo.withinTx(ctx, exec, func(ext sqlx.ExtContext) error {
		res, err := ext.ExecContext(ctx,
			`UPDATE course_module SET title = $2, updated_at = $3 WHERE id = $1`,
			mod.ID, mod.Title, mod.UpdatedAt.UTC(),
		)
		if err = checkAffected(res, err, course.ErrModuleNotFound, "updating module"); err != nil {
			return err
		}
		if _, err = ext.ExecContext(ctx, `DELETE FROM lesson WHERE module_id = $1`, mod.ID); err != nil {
			return core.NewStoreError(err, "deleting lessons")
		}
		return insertLessons(ctx, ext, mod.ID, mod.Lessons)
	})
	if err != nil {
		return course.Module{}, err
	}
	return mod, nil
}

func (repo courseRepository) DeleteModule(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM course_module WHERE id = $1`, id)
	return checkAffected(res, err, course.ErrModuleNotFound, "deleting module")
}

func (repo courseRepository) QueryModules(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Module, error) {
	ext := repo.getExec(exec)

	var rows []moduleRow
	if err := sqlx.SelectContext(ctx, ext, &rows,
		`SELECT `+moduleColumns+` FROM course_module WHERE course_id = $1 ORDER BY position, created_at`, courseID); err != nil {
		return nil, core.NewStoreError(err, "querying modules")
	}
	return withLessons(ctx, ext, rows)
}

// withLessons loads the lessons of every module in rows, in one query.
func withLessons(ctx context.Context, ext sqlx.ExtContext, rows []moduleRow) ([]course.Module, error) {
	mods := make([]course.Module, 0, len(rows))
	if len(rows) == 0 {
		return mods, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var lessons []lessonRow
	if err := sqlx.SelectContext(ctx, ext, &lessons,
		`SELECT `+lessonColumns+` FROM lesson WHERE module_id = ANY($1) ORDER BY position`, pq.Array(ids)); err != nil {
		return nil, core.NewStoreError(err, "querying lessons")
	}

	byModule := make(map[string][]course.Lesson, len(rows))
	for _, l := range lessons {
		byModule[l.ModuleID] = append(byModule[l.ModuleID], course.Lesson{
			ID:         l.ID,
			Title:      l.Title,
			ContentURL: l.ContentURL,
			Position:   l.Position,
		})
	}
	for _, row := range rows {
		ls := byModule[row.ID]
		if ls == nil {
			ls = []course.Lesson{}
		}
		mods = append(mods, course.Module{
			ID:        row.ID,
			CourseID:  row.CourseID,
			Title:     row.Title,
			Position:  row.Position,
			Lessons:   ls,
			CreatedAt: row.CreatedAt.UTC(),
			UpdatedAt: row.UpdatedAt.UTC(),
		})
	}
	return mods, nil
}

func insertLessons(ctx context.Context, ext sqlx.ExtContext, moduleID string, lessons []course.Lesson) error {
	for _, l := range lessons {
		_, err := sqlx.NamedExecContext(ctx, ext,
			`INSERT INTO lesson (`+lessonColumns+`) VALUES (:id, :module_id, :title, :content_url, :position)`,
			lessonRow{ID: l.ID, ModuleID: moduleID, Title: l.Title, ContentURL: l.ContentURL, Position: l.Position},
		)
		if err != nil {
			return core.NewStoreError(err, "inserting lesson")
		}
	}
	return nil
}

// checkAffected maps a statement that touched no row to notFound.
func checkAffected(res sql.Result, err error, notFound error, msg string) error {
	if err != nil {
		return core.NewStoreError(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.NewStoreError(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
