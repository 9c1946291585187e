package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursehub/core/enrollment"
)

type enrollmentApi struct {
	svc enrollment.Service
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc enrollment.Service) {
	api := enrollmentApi{svc: svc}

	eg := g.Group("", jwt)
	eg.GET("/enrolled", api.query)
	eg.POST("/enroll", api.enroll)
	eg.GET("/lesson-progress/:courseId", api.progress)
	eg.POST("/complete-lesson", api.completeLesson)
}

type EnrolledCoursesResponse struct {
	EnrolledCourses []enrollment.Record `json:"enrolledCourses"`
}

func newEnrolledCoursesResponse(recs []enrollment.Record) EnrolledCoursesResponse {
	if recs == nil {
		recs = []enrollment.Record{}
	}
	return EnrolledCoursesResponse{EnrolledCourses: recs}
}

// Handlers

func (api *enrollmentApi) query(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user ID")
	}

	recs, err := api.svc.ListEnrollments(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	return ctx.JSON(http.StatusOK, newEnrolledCoursesResponse(recs))
}

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user ID")
	}

	var data enrollment.NewEnrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}

	recs, err := api.svc.Enroll(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, newEnrolledCoursesResponse(recs))
}

// progress answers with an empty progress when the user is not enrolled in the course.
func (api *enrollmentApi) progress(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user ID")
	}

	prog, err := api.svc.GetProgress(ctx.Request().Context(), userID, ctx.Param("courseId"))
	switch errors.Cause(err) {
	case nil:
	case enrollment.ErrEnrollmentNotFound:
		prog = enrollment.Progress{CompletedLessons: []string{}, Progress: 0}
	default:
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *enrollmentApi) completeLesson(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user ID")
	}

	var data enrollment.CompleteLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteLesson")
	}

	prog, err := api.svc.CompleteLesson(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, prog)
}
