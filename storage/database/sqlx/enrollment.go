package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/enrollment"
)

type enrollmentRow struct {
	CourseID         string         `db:"course_id"`
	Title            string         `db:"title"`
	Image            null.String    `db:"image"`
	EnrolledAt       time.Time      `db:"enrolled_at"`
	Progress         int            `db:"progress"`
	CompletedLessons pq.StringArray `db:"completed_lessons"`
	Version          int            `db:"version"`
}

const enrollmentColumns = `course_id, title, image, enrolled_at, progress, completed_lessons, version`

func (row enrollmentRow) toRecord() enrollment.Record {
	lessons := []string(row.CompletedLessons)
	if lessons == nil {
		lessons = []string{}
	}
	return enrollment.Record{
		CourseID:         row.CourseID,
		Title:            row.Title,
		Image:            row.Image.String,
		EnrolledAt:       row.EnrolledAt.UTC(),
		Progress:         row.Progress,
		CompletedLessons: lessons,
		Version:          row.Version,
	}
}

type enrollmentRepository struct {
	repository
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) enrollment.Repository {
	return &enrollmentRepository{repository{db: db}}
}

func (repo enrollmentRepository) userExists(ctx context.Context, ext sqlx.ExtContext, userID string) error {
	var found bool
	err := sqlx.GetContext(ctx, ext, &found, `SELECT true FROM "user" WHERE id = $1`, userID)
	if err == sql.ErrNoRows {
		return enrollment.ErrUserNotFound
	} else if err != nil {
		return core.NewStoreError(err, "finding user")
	}
	return nil
}

func (repo enrollmentRepository) FindEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (enrollment.Record, error) {
	ext := repo.getExec(exec)

	var row enrollmentRow
	err := sqlx.GetContext(ctx, ext, &row,
		`SELECT `+enrollmentColumns+` FROM enrollment WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	if err == sql.ErrNoRows {
		if err = repo.userExists(ctx, ext, userID); err != nil {
			return enrollment.Record{}, err
		}
		return enrollment.Record{}, enrollment.ErrEnrollmentNotFound
	} else if err != nil {
		return enrollment.Record{}, core.NewStoreError(err, "finding enrollment")
	}
	return row.toRecord(), nil
}

func (repo enrollmentRepository) ListEnrollments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]enrollment.Record, error) {
	ext := repo.getExec(exec)
	if err := repo.userExists(ctx, ext, userID); err != nil {
		return nil, err
	}

	var rows []enrollmentRow
	err := sqlx.SelectContext(ctx, ext, &rows,
		`SELECT `+enrollmentColumns+` FROM enrollment WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, core.NewStoreError(err, "querying enrollments")
	}

	recs := make([]enrollment.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.toRecord())
	}
	return recs, nil
}

func (repo enrollmentRepository) AppendEnrollment(ctx context.Context, userID string, rec enrollment.Record, exec ...core.DBExecutor) error {
	lessons := rec.CompletedLessons
	if lessons == nil {
		lessons = []string{}
	}
	res, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO enrollment (user_id, course_id, title, image, enrolled_at, progress, completed_lessons, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, rec.CourseID, rec.Title, null.NewString(rec.Image, rec.Image != ""),
		rec.EnrolledAt.UTC(), rec.Progress, pq.Array(lessons),
	)
	if err != nil {
		if pqErrCode(err) == foreignKeyViolation {
			return enrollment.ErrUserNotFound
		}
		return core.NewStoreError(err, "inserting enrollment")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return core.NewStoreError(err, "inserting enrollment")
	}
	if n == 0 {
		return enrollment.ErrAlreadyEnrolled
	}
	return nil
}

func (repo enrollmentRepository) ReplaceEnrollment(
	ctx context.Context,
	userID, courseID string,
	upd enrollment.Update,
	exec ...core.DBExecutor,
) (enrollment.Record, error) {
	ext := repo.getExec(exec)
	lessons := upd.CompletedLessons
	if lessons == nil {
		lessons = []string{}
	}

	var row enrollmentRow
	err := sqlx.GetContext(ctx, ext, &row,
		`UPDATE enrollment SET completed_lessons = $4, progress = $5, version = version + 1
		WHERE user_id = $1 AND course_id = $2 AND version = $3
		RETURNING `+enrollmentColumns,
		userID, courseID, upd.Version, pq.Array(lessons), upd.Progress,
	)
	if err == sql.ErrNoRows {
		// gone, or updated since it was read
		if _, err = repo.FindEnrollment(ctx, userID, courseID, exec...); err != nil {
			return enrollment.Record{}, err
		}
		return enrollment.Record{}, enrollment.ErrStaleRecord
	} else if err != nil {
		return enrollment.Record{}, core.NewStoreError(err, "updating enrollment")
	}
	return row.toRecord(), nil
}

func (repo enrollmentRepository) CascadeDeleteByCourse(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM enrollment WHERE course_id = $1`, courseID)
	if err != nil {
		return 0, core.NewStoreError(err, "deleting course enrollments")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.NewStoreError(err, "deleting course enrollments")
	}
	return int(n), nil
}
