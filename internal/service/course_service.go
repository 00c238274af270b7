package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	"github.com/rahull-prog/iiitnrattendence/internal/repository"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

// joinCodeMaxAttempts bounds the collision-retry loop. With a 32-character
// alphabet and 6 positions the space is ~10^9 codes, so retries are rare.
const joinCodeMaxAttempts = 5

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByJoinCode(ctx context.Context, code string) (*models.Course, error)
	SetJoinCode(ctx context.Context, courseID, code string) error
	ListByFaculty(ctx context.Context, facultyID string) ([]models.Course, error)
	ListEnrolled(ctx context.Context, studentID string) ([]models.CourseDetail, error)
	AdjustEnrolledCount(ctx context.Context, courseID string, delta int) error
}

type courseEnrollmentRepository interface {
	CreateIfAbsent(ctx context.Context, enrollment *models.Enrollment) (bool, error)
	Deactivate(ctx context.Context, courseID, studentID string) (bool, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

// CourseService manages courses, join codes and enrollment membership.
type CourseService struct {
	courses     courseRepository
	enrollments courseEnrollmentRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(courses courseRepository, enrollments courseEnrollmentRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, enrollments: enrollments, validator: validate, logger: logger}
}

// CreateCourseRequest describes the payload for creating a course.
type CreateCourseRequest struct {
	Code         string `json:"code" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Department   string `json:"department" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`
}

// Create registers a new course owned by the calling faculty member.
func (s *CourseService) Create(ctx context.Context, facultyID string, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{
		FacultyID:    facultyID,
		Code:         req.Code,
		Name:         req.Name,
		Department:   req.Department,
		AcademicYear: req.AcademicYear,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, unavailable(err)
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("faculty_id", facultyID))
	return course, nil
}

// GenerateJoinCode assigns a fresh join code to a course that has none.
// Codes are immutable once set; collisions with other courses retry with a
// new random code.
func (s *CourseService) GenerateJoinCode(ctx context.Context, facultyID, courseID string) (string, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return "", storageErr(err, "course not found")
	}
	if course.FacultyID != facultyID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only the course owner can generate a join code")
	}
	if course.JoinCode != nil {
		return "", appErrors.Clone(appErrors.ErrConflict, "course already has a join code")
	}

	for attempt := 0; attempt < joinCodeMaxAttempts; attempt++ {
		code, err := randomJoinCode()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate join code")
		}
		err = s.courses.SetJoinCode(ctx, courseID, code)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, repository.ErrJoinCodeTaken) {
			continue
		}
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrConflict, "course already has a join code")
		}
		return "", unavailable(err)
	}
	return "", appErrors.Wrap(fmt.Errorf("exhausted %d attempts", joinCodeMaxAttempts),
		appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate a unique join code")
}

// JoinByCode enrolls the calling student into the course carrying the code.
func (s *CourseService) JoinByCode(ctx context.Context, studentID, code string) (*models.Course, error) {
	course, err := s.courses.FindByJoinCode(ctx, code)
	if err != nil {
		return nil, storageErr(err, "no course matches this join code")
	}
	if err := s.enroll(ctx, course, studentID, models.EnrollmentSourceJoinCode); err != nil {
		return nil, err
	}
	return course, nil
}

// EnrollStudent grants a student membership directly; faculty-owner only.
func (s *CourseService) EnrollStudent(ctx context.Context, facultyID, courseID, studentID string) error {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return storageErr(err, "course not found")
	}
	if course.FacultyID != facultyID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the course owner can enroll students")
	}
	return s.enroll(ctx, course, studentID, models.EnrollmentSourceDirect)
}

// Unenroll deactivates a student's enrollment; faculty-owner only. The
// enrollment history row is kept.
func (s *CourseService) Unenroll(ctx context.Context, facultyID, courseID, studentID string) error {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return storageErr(err, "course not found")
	}
	if course.FacultyID != facultyID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the course owner can unenroll students")
	}
	removed, err := s.enrollments.Deactivate(ctx, courseID, studentID)
	if err != nil {
		return unavailable(err)
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course")
	}
	if err := s.courses.AdjustEnrolledCount(ctx, courseID, -1); err != nil {
		return unavailable(err)
	}
	return nil
}

// ListMine returns the courses owned by a faculty member.
func (s *CourseService) ListMine(ctx context.Context, facultyID string) ([]models.Course, error) {
	courses, err := s.courses.ListByFaculty(ctx, facultyID)
	if err != nil {
		return nil, unavailable(err)
	}
	return courses, nil
}

// ListEnrolled returns the courses a student is enrolled in.
func (s *CourseService) ListEnrolled(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	courses, err := s.courses.ListEnrolled(ctx, studentID)
	if err != nil {
		return nil, unavailable(err)
	}
	return courses, nil
}

// Members returns the active enrollments of a course; faculty-owner only.
func (s *CourseService) Members(ctx context.Context, facultyID, courseID string) ([]models.EnrollmentDetail, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, storageErr(err, "course not found")
	}
	if course.FacultyID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course owner can view the roster")
	}
	rows, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, unavailable(err)
	}
	return rows, nil
}

func (s *CourseService) enroll(ctx context.Context, course *models.Course, studentID string, source models.EnrollmentSource) error {
	if !course.Active {
		return appErrors.Clone(appErrors.ErrConflict, "course is no longer active")
	}
	inserted, err := s.enrollments.CreateIfAbsent(ctx, &models.Enrollment{
		CourseID:  course.ID,
		StudentID: studentID,
		Source:    source,
	})
	if err != nil {
		return unavailable(err)
	}
	if !inserted {
		return appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
	}
	if err := s.courses.AdjustEnrolledCount(ctx, course.ID, 1); err != nil {
		return unavailable(err)
	}
	s.logger.Info("student enrolled",
		zap.String("course_id", course.ID),
		zap.String("student_id", studentID),
		zap.String("source", string(source)))
	return nil
}

// randomJoinCode draws JoinCodeLength characters from the unambiguous
// alphabet using crypto/rand.
func randomJoinCode() (string, error) {
	buf := make([]byte, models.JoinCodeLength)
	max := big.NewInt(int64(len(models.JoinCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = models.JoinCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
