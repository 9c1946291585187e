package course

import (
	"time"
)

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"createdAt"` // UTC
	UpdatedAt   time.Time `json:"updatedAt"` // UTC
}

// Module is an ordered group of lessons within a course.
type Module struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	Lessons   []Lesson  `json:"lessons"`
	CreatedAt time.Time `json:"createdAt"` // UTC
	UpdatedAt time.Time `json:"updatedAt"` // UTC
}

type Lesson struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ContentURL string `json:"contentUrl"`
	Position   int    `json:"position"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Image       string `json:"image" validate:"omitempty,url"`
}

// NewLesson describes one lesson of a module. ID is generated when empty.
type NewLesson struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	Title      string `json:"title" validate:"required"`
	ContentURL string `json:"contentUrl" validate:"omitempty,url"`
}

// NewModule contains information needed to add a Module to a Course.
type NewModule struct {
	Title    string      `json:"title" validate:"required"`
	Position *int        `json:"position" validate:"omitempty,min=0"`
	Lessons  []NewLesson `json:"lessons" validate:"dive"`
}

// UpdateModule replaces a module's title and its full ordered lesson list.
type UpdateModule struct {
	Title   string      `json:"title" validate:"required"`
	Lessons []NewLesson `json:"lessons" validate:"dive"`
}
