package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	"github.com/rahull-prog/iiitnrattendence/internal/repository"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type stubCourseRepo struct {
	courses       map[string]*models.Course
	takenCodes    map[string]bool
	counts        map[string]int
	codeAttempts  int
	failSetCalls  int // first N SetJoinCode calls fail with ErrJoinCodeTaken
	enrolledLists map[string][]models.CourseDetail
}

func newStubCourseRepo() *stubCourseRepo {
	return &stubCourseRepo{
		courses:    make(map[string]*models.Course),
		takenCodes: make(map[string]bool),
		counts:     make(map[string]int),
	}
}

func (s *stubCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-new"
	}
	course.Active = true
	s.courses[course.ID] = course
	return nil
}

func (s *stubCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := s.courses[id]; ok {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubCourseRepo) FindByJoinCode(ctx context.Context, code string) (*models.Course, error) {
	for _, course := range s.courses {
		if course.JoinCode != nil && *course.JoinCode == code && course.Active {
			return course, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubCourseRepo) SetJoinCode(ctx context.Context, courseID, code string) error {
	s.codeAttempts++
	if s.failSetCalls > 0 {
		s.failSetCalls--
		return repository.ErrJoinCodeTaken
	}
	course, ok := s.courses[courseID]
	if !ok {
		return sql.ErrNoRows
	}
	if course.JoinCode != nil {
		return sql.ErrNoRows
	}
	if s.takenCodes[code] {
		return repository.ErrJoinCodeTaken
	}
	s.takenCodes[code] = true
	course.JoinCode = &code
	return nil
}

func (s *stubCourseRepo) ListByFaculty(ctx context.Context, facultyID string) ([]models.Course, error) {
	var list []models.Course
	for _, course := range s.courses {
		if course.FacultyID == facultyID {
			list = append(list, *course)
		}
	}
	return list, nil
}

func (s *stubCourseRepo) ListEnrolled(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	return s.enrolledLists[studentID], nil
}

func (s *stubCourseRepo) AdjustEnrolledCount(ctx context.Context, courseID string, delta int) error {
	s.counts[courseID] += delta
	return nil
}

type stubEnrollmentRepo struct {
	active map[string]bool
}

func newStubEnrollmentRepo() *stubEnrollmentRepo {
	return &stubEnrollmentRepo{active: make(map[string]bool)}
}

func (s *stubEnrollmentRepo) key(courseID, studentID string) string {
	return courseID + "/" + studentID
}

func (s *stubEnrollmentRepo) CreateIfAbsent(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	k := s.key(enrollment.CourseID, enrollment.StudentID)
	if s.active[k] {
		return false, nil
	}
	s.active[k] = true
	return true, nil
}

func (s *stubEnrollmentRepo) Deactivate(ctx context.Context, courseID, studentID string) (bool, error) {
	k := s.key(courseID, studentID)
	if !s.active[k] {
		return false, nil
	}
	s.active[k] = false
	return true, nil
}

func (s *stubEnrollmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func newCourseFixture() (*CourseService, *stubCourseRepo, *stubEnrollmentRepo) {
	courses := newStubCourseRepo()
	enrollments := newStubEnrollmentRepo()
	svc := NewCourseService(courses, enrollments, nil, nil)
	return svc, courses, enrollments
}

func createTestCourse(t *testing.T, svc *CourseService) *models.Course {
	t.Helper()
	course, err := svc.Create(context.Background(), "fac-1", CreateCourseRequest{
		Code:         "CS301",
		Name:         "Operating Systems",
		Department:   "CSE",
		AcademicYear: "2024-25",
	})
	require.NoError(t, err)
	return course
}

func TestGenerateJoinCodeFormat(t *testing.T) {
	svc, _, _ := newCourseFixture()
	course := createTestCourse(t, svc)

	code, err := svc.GenerateJoinCode(context.Background(), "fac-1", course.ID)
	require.NoError(t, err)
	assert.Len(t, code, models.JoinCodeLength)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(models.JoinCodeAlphabet, r),
			"character %q outside the join code alphabet", r)
	}
}

func TestGenerateJoinCodeImmutable(t *testing.T) {
	svc, _, _ := newCourseFixture()
	course := createTestCourse(t, svc)

	_, err := svc.GenerateJoinCode(context.Background(), "fac-1", course.ID)
	require.NoError(t, err)

	_, err = svc.GenerateJoinCode(context.Background(), "fac-1", course.ID)
	require.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestGenerateJoinCodeRetriesOnCollision(t *testing.T) {
	svc, courses, _ := newCourseFixture()
	course := createTestCourse(t, svc)
	courses.failSetCalls = 2

	code, err := svc.GenerateJoinCode(context.Background(), "fac-1", course.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Equal(t, 3, courses.codeAttempts)
}

func TestGenerateJoinCodeGivesUpAfterMaxAttempts(t *testing.T) {
	svc, courses, _ := newCourseFixture()
	course := createTestCourse(t, svc)
	courses.failSetCalls = joinCodeMaxAttempts

	_, err := svc.GenerateJoinCode(context.Background(), "fac-1", course.ID)
	require.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestGenerateJoinCodeOwnerOnly(t *testing.T) {
	svc, _, _ := newCourseFixture()
	course := createTestCourse(t, svc)

	_, err := svc.GenerateJoinCode(context.Background(), "fac-2", course.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestJoinByCode(t *testing.T) {
	svc, courses, _ := newCourseFixture()
	course := createTestCourse(t, svc)

	code, err := svc.GenerateJoinCode(context.Background(), "fac-1", course.ID)
	require.NoError(t, err)

	joined, err := svc.JoinByCode(context.Background(), "stu-1", code)
	require.NoError(t, err)
	assert.Equal(t, course.ID, joined.ID)
	assert.Equal(t, 1, courses.counts[course.ID])

	// Joining again is a conflict and the count stays put.
	_, err = svc.JoinByCode(context.Background(), "stu-1", code)
	require.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, 1, courses.counts[course.ID])
}

func TestJoinByUnknownCode(t *testing.T) {
	svc, _, _ := newCourseFixture()

	_, err := svc.JoinByCode(context.Background(), "stu-1", "ZZZZZZ")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestJoinInactiveCourse(t *testing.T) {
	svc, courses, _ := newCourseFixture()
	course := createTestCourse(t, svc)

	code, err := svc.GenerateJoinCode(context.Background(), "fac-1", course.ID)
	require.NoError(t, err)
	courses.courses[course.ID].Active = false

	_, err = svc.JoinByCode(context.Background(), "stu-1", code)
	require.ErrorIs(t, err, appErrors.ErrNotFound,
		"inactive courses are invisible to join codes")
}

func TestEnrollAndUnenrollStudent(t *testing.T) {
	svc, courses, enrollments := newCourseFixture()
	course := createTestCourse(t, svc)

	require.NoError(t, svc.EnrollStudent(context.Background(), "fac-1", course.ID, "stu-1"))
	assert.True(t, enrollments.active[course.ID+"/stu-1"])
	assert.Equal(t, 1, courses.counts[course.ID])

	require.NoError(t, svc.Unenroll(context.Background(), "fac-1", course.ID, "stu-1"))
	assert.False(t, enrollments.active[course.ID+"/stu-1"])
	assert.Equal(t, 0, courses.counts[course.ID])

	err := svc.Unenroll(context.Background(), "fac-1", course.ID, "stu-1")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEnrollStudentOwnerOnly(t *testing.T) {
	svc, _, _ := newCourseFixture()
	course := createTestCourse(t, svc)

	err := svc.EnrollStudent(context.Background(), "fac-2", course.ID, "stu-1")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}
