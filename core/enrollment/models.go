package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/coursehub/core"
)

// Record is one enrolled course of a user.
type Record struct {
	CourseID         string    `json:"courseId"`
	Title            string    `json:"title"`
	Image            string    `json:"image"`
	EnrolledAt       time.Time `json:"enrolledAt"` // UTC
	Progress         int       `json:"progress"`
	CompletedLessons []string  `json:"completedLessons"`
	Version          int       `json:"-"`
}

// clone returns a copy of rec that shares no memory with it.
func (rec Record) clone() Record {
	lessons := make([]string, len(rec.CompletedLessons))
	copy(lessons, rec.CompletedLessons)
	rec.CompletedLessons = lessons
	return rec
}

// Progress is the completion state of one enrollment.
type Progress struct {
	CompletedLessons []string `json:"completedLessons"`
	Progress         int      `json:"progress"`
}

func (rec Record) AsProgress() Progress {
	lessons := rec.CompletedLessons
	if lessons == nil {
		lessons = []string{}
	}
	return Progress{CompletedLessons: lessons, Progress: rec.Progress}
}

// Update is the mutable part of a Record. Version is the version the update was computed from.
type Update struct {
	CompletedLessons []string
	Progress         int
	Version          int
}

func (rec Record) update() Update {
	return Update{
		CompletedLessons: rec.CompletedLessons,
		Progress:         rec.Progress,
		Version:          rec.Version,
	}
}

// NewEnrollment contains information needed to enroll a user in a course.
type NewEnrollment struct {
	CourseID string `json:"courseId" validate:"required"`
	Title    string `json:"title" validate:"required"`
	Image    string `json:"image"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.CourseID = core.CleanString(ne.CourseID)
	ne.Title = core.CleanString(ne.Title)
	ne.Image = core.CleanString(ne.Image)
	return validate.Struct(ne)
}

// CompleteLesson contains information needed to mark a lesson as completed.
// TotalLessons is the caller's count of lessons in the course; it is only used when completion is not strict.
type CompleteLesson struct {
	CourseID     string `json:"courseId" validate:"required"`
	LessonID     string `json:"lessonId" validate:"required"`
	TotalLessons int    `json:"totalLessons" validate:"min=0"`
}

func (cl *CompleteLesson) Validate(validate *validator.Validate) error {
	cl.CourseID = core.CleanString(cl.CourseID)
	cl.LessonID = core.CleanString(cl.LessonID)
	return validate.Struct(cl)
}

// LessonSet is the set of lesson ids currently in a course.
type LessonSet map[string]struct{}

func NewLessonSet(ids ...string) LessonSet {
	set := make(LessonSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s LessonSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s LessonSet) Len() int {
	return len(s)
}
