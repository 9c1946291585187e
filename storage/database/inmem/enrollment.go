package inmemdb

import (
	"context"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/enrollment"
)

type enrollmentRepository struct {
	db *userTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db.user}
}

func (repo *enrollmentRepository) find(userID, courseID string) (*userRow, int, error) {
	row, ok := repo.db.table[userID]
	if !ok {
		return nil, -1, enrollment.ErrUserNotFound
	}
	for i, rec := range row.enrollments {
		if rec.CourseID == courseID {
			return row, i, nil
		}
	}
	return row, -1, enrollment.ErrEnrollmentNotFound
}

func (repo *enrollmentRepository) FindEnrollment(_ context.Context, userID, courseID string, _ ...core.DBExecutor) (enrollment.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	row, i, err := repo.find(userID, courseID)
	if err != nil {
		return enrollment.Record{}, err
	}
	return copyRecord(row.enrollments[i]), nil
}

func (repo *enrollmentRepository) ListEnrollments(_ context.Context, userID string, _ ...core.DBExecutor) ([]enrollment.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	row, ok := repo.db.table[userID]
	if !ok {
		return nil, enrollment.ErrUserNotFound
	}
	recs := make([]enrollment.Record, 0, len(row.enrollments))
	for _, rec := range row.enrollments {
		recs = append(recs, copyRecord(rec))
	}
	return recs, nil
}

func (repo *enrollmentRepository) AppendEnrollment(_ context.Context, userID string, rec enrollment.Record, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, _, err := repo.find(userID, rec.CourseID)
	switch err {
	case nil:
		return enrollment.ErrAlreadyEnrolled
	case enrollment.ErrEnrollmentNotFound:
	default:
		return err
	}

	rec = copyRecord(rec)
	if rec.CompletedLessons == nil {
		rec.CompletedLessons = []string{}
	}
	rec.Version = 1
	row.enrollments = append(row.enrollments, rec)
	return nil
}

func (repo *enrollmentRepository) ReplaceEnrollment(
	_ context.Context,
	userID, courseID string,
	upd enrollment.Update,
	_ ...core.DBExecutor,
) (enrollment.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, i, err := repo.find(userID, courseID)
	if err != nil {
		return enrollment.Record{}, err
	}
	rec := &row.enrollments[i]
	if rec.Version != upd.Version {
		return enrollment.Record{}, enrollment.ErrStaleRecord
	}
	rec.CompletedLessons = cloneStrings(upd.CompletedLessons)
	if rec.CompletedLessons == nil {
		rec.CompletedLessons = []string{}
	}
	rec.Progress = upd.Progress
	rec.Version++
	return copyRecord(*rec), nil
}

func (repo *enrollmentRepository) CascadeDeleteByCourse(_ context.Context, courseID string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var removed int
	for _, row := range repo.db.table {
		kept := row.enrollments[:0]
		for _, rec := range row.enrollments {
			if rec.CourseID == courseID {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		row.enrollments = kept
	}
	return removed, nil
}

func copyRecord(rec enrollment.Record) enrollment.Record {
	rec.CompletedLessons = cloneStrings(rec.CompletedLessons)
	return rec
}
