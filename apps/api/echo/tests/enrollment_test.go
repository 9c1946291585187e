package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/coursehub/apps/api/echo"
	"github.com/trezcool/coursehub/core/course"
	"github.com/trezcool/coursehub/core/enrollment"
	"github.com/trezcool/coursehub/core/user"
)

func enrollBody(t *testing.T, crs course.Course) []byte {
	return marchallObj(t, enrollment.NewEnrollment{CourseID: crs.ID, Title: crs.Title, Image: crs.Image})
}

func completeBody(t *testing.T, courseID, lessonID string) []byte {
	return marchallObj(t, enrollment.CompleteLesson{CourseID: courseID, LessonID: lessonID})
}

func progressData(t *testing.T, progress int, lessons ...string) []byte {
	if lessons == nil {
		lessons = []string{}
	}
	return marchallObj(t, enrollment.Progress{CompletedLessons: lessons, Progress: progress})
}

func Test_enrollmentApi(t *testing.T) {
	a := setup(t)
	student := user.CreateTestUser(t, a.usrSvc, "Student", "student")
	admin := user.CreateTestUser(t, a.usrSvc, "Admin", "admin_user", user.RoleAdmin)
	token, adminToken := a.getToken(t, student), a.getToken(t, admin)
	ghostToken := a.getToken(t, user.User{ID: "ghost", Roles: []string{user.RoleStudent}})

	crs, _ := a.createCourse(t, adminToken, "Go 101", "L1", "L2", "L3")
	other, _ := a.createCourse(t, adminToken, "Rust 101", "R1")

	var enrolled echoapi.EnrolledCoursesResponse

	runHTTPTests(t, a, []httpTest{
		{name: "auth required", path: "/api/enrolled", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "nothing enrolled", path: "/api/enrolled", token: token,
			wantCode: http.StatusOK, wantData: []byte(`{"enrolledCourses":[]}`),
		},
		{
			name: "unknown user", path: "/api/enrolled", token: ghostToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "enroll: invalid", method: http.MethodPost, path: "/api/enroll", token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"courseId": "this field is required", "title": "this field is required"}),
		},
		{
			name: "enroll: unknown user", method: http.MethodPost, path: "/api/enroll", token: ghostToken, body: enrollBody(t, crs),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
	})

	t.Run("enroll", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/api/enroll", token, enrollBody(t, crs))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarchall(t, rec, &enrolled)
		require.Len(t, enrolled.EnrolledCourses, 1)
		got := enrolled.EnrolledCourses[0]
		assert.Equal(t, crs.ID, got.CourseID)
		assert.Equal(t, "Go 101", got.Title)
		assert.Equal(t, 0, got.Progress)
		assert.Equal(t, []string{}, got.CompletedLessons)
		assert.False(t, got.EnrolledAt.IsZero())
		assert.NotContains(t, rec.Body.String(), "version")

		rec = a.do(http.MethodPost, "/api/enroll", token, enrollBody(t, other))
		require.Equal(t, http.StatusCreated, rec.Code)
		unmarchall(t, rec, &enrolled)
		require.Len(t, enrolled.EnrolledCourses, 2)
		assert.Equal(t, crs.ID, enrolled.EnrolledCourses[0].CourseID)
		assert.Equal(t, other.ID, enrolled.EnrolledCourses[1].CourseID)

		// enrollment emails are enabled by default
		sent := a.mailSvc.SentMessages()
		require.Len(t, sent, 2)
		assert.Equal(t, "course_enrolled", sent[0].TemplateName)
		assert.Equal(t, student.Email, sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, `"Go 101"`)
	})

	runHTTPTests(t, a, []httpTest{
		{
			name: "enroll twice", method: http.MethodPost, path: "/api/enroll", token: token, body: enrollBody(t, crs),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "already enrolled in this course"}),
		},
		{name: "progress: fresh", path: "/api/lesson-progress/" + crs.ID, token: token, wantCode: http.StatusOK, wantData: progressData(t, 0)},
		{name: "progress: not enrolled", path: "/api/lesson-progress/nope", token: token, wantCode: http.StatusOK, wantData: progressData(t, 0)},
		{
			name: "progress: unknown user", path: "/api/lesson-progress/" + crs.ID, token: ghostToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "complete: invalid", method: http.MethodPost, path: "/api/complete-lesson", token: token,
			body:     []byte(`{"courseId":"` + crs.ID + `"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"lessonId": "this field is required"}),
		},
		{
			name: "complete: not enrolled", method: http.MethodPost, path: "/api/complete-lesson", token: token,
			body:     completeBody(t, "nope", "L1"),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "enrollment not found"}),
		},
		{
			name: "complete: unknown lesson", method: http.MethodPost, path: "/api/complete-lesson", token: token,
			body:     completeBody(t, crs.ID, "R1"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"lessonId": enrollment.ErrUnknownLesson.Error()}),
		},
		{
			name: "complete L1", method: http.MethodPost, path: "/api/complete-lesson", token: token,
			body: completeBody(t, crs.ID, "L1"), wantCode: http.StatusOK, wantData: progressData(t, 33, "L1"),
		},
		{
			name: "complete L1 again", method: http.MethodPost, path: "/api/complete-lesson", token: token,
			body: completeBody(t, crs.ID, "L1"), wantCode: http.StatusOK, wantData: progressData(t, 33, "L1"),
		},
		{
			name: "complete L3", method: http.MethodPost, path: "/api/complete-lesson", token: token,
			body: completeBody(t, crs.ID, "L3"), wantCode: http.StatusOK, wantData: progressData(t, 67, "L1", "L3"),
		},
		{name: "progress", path: "/api/lesson-progress/" + crs.ID, token: token, wantCode: http.StatusOK, wantData: progressData(t, 67, "L1", "L3")},
	})

	t.Run("progress heals after the catalog changed", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/api/courses/"+crs.ID, token)
		var detail echoapi.CourseDetail
		unmarchall(t, rec, &detail)
		require.Len(t, detail.Modules, 1)

		// L3 is removed, L4 is added
		upd := course.UpdateModule{Title: "Module", Lessons: []course.NewLesson{{ID: "L1", Title: "1"}, {ID: "L2", Title: "2"}, {ID: "L4", Title: "4"}}}
		rec = a.do(http.MethodPut, "/api/modules/"+detail.Modules[0].ID, adminToken, marchallObj(t, upd))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = a.do(http.MethodGet, "/api/lesson-progress/"+crs.ID, token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: progressData(t, 33, "L1")}, rec)

		// the healed record was stored
		rec = a.do(http.MethodGet, "/api/enrolled", token)
		unmarchall(t, rec, &enrolled)
		assert.Equal(t, 33, enrolled.EnrolledCourses[0].Progress)
		assert.Equal(t, []string{"L1"}, enrolled.EnrolledCourses[0].CompletedLessons)
	})

	t.Run("completion", func(t *testing.T) {
		a.mailSvc.Reset()
		rec := a.do(http.MethodPut, "/api/settings", adminToken, []byte(`{"emailNotifications":{"course_completed":true}}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		for _, tt := range []httpTest{
			{body: completeBody(t, crs.ID, "L2"), wantCode: http.StatusOK, wantData: progressData(t, 67, "L1", "L2")},
			{body: completeBody(t, crs.ID, "L4"), wantCode: http.StatusOK, wantData: progressData(t, 100, "L1", "L2", "L4")},
			{body: completeBody(t, crs.ID, "L4"), wantCode: http.StatusOK, wantData: progressData(t, 100, "L1", "L2", "L4")},
		} {
			checkCodeAndData(t, tt, a.do(http.MethodPost, "/api/complete-lesson", token, tt.body))
		}

		// sent once, when reaching 100
		sent := a.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, "course_completed", sent[0].TemplateName)
	})

	t.Run("course deletion removes enrollments", func(t *testing.T) {
		rec := a.do(http.MethodDelete, "/api/courses/"+crs.ID, adminToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = a.do(http.MethodGet, "/api/enrolled", token)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarchall(t, rec, &enrolled)
		require.Len(t, enrolled.EnrolledCourses, 1)
		assert.Equal(t, other.ID, enrolled.EnrolledCourses[0].CourseID)

		rec = a.do(http.MethodGet, "/api/lesson-progress/"+crs.ID, token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: progressData(t, 0)}, rec)
	})
}
