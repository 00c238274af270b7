package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type dashboardSessionReader interface {
	TodayByFaculty(ctx context.Context, facultyID string, dayStart time.Time) ([]models.SessionSummary, error)
}

type dashboardAttendanceReader interface {
	StudentSummary(ctx context.Context, studentID string) (present int, total int, err error)
	StudentMarksSince(ctx context.Context, studentID string, since time.Time) ([]models.StudentMark, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// DashboardService assembles the read-side faculty and student views. Both
// views are cached briefly; writes invalidate through the Invalidate hooks.
type DashboardService struct {
	sessions   dashboardSessionReader
	attendance dashboardAttendanceReader
	cache      dashboardCache
	ttl        time.Duration
	logger     *zap.Logger
}

// NewDashboardService constructs the dashboard service. cache may be nil,
// in which case every read goes to storage.
func NewDashboardService(sessions dashboardSessionReader, attendance dashboardAttendanceReader, cache dashboardCache, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{sessions: sessions, attendance: attendance, cache: cache, ttl: ttl, logger: logger}
}

func facultyDashboardKey(facultyID string) string {
	return fmt.Sprintf("dashboard:faculty:%s", facultyID)
}

func studentDashboardKey(studentID string) string {
	return fmt.Sprintf("dashboard:student:%s", studentID)
}

// Faculty returns today's sessions for a faculty member with running counts.
func (s *DashboardService) Faculty(ctx context.Context, facultyID string) (*models.FacultyDashboard, error) {
	key := facultyDashboardKey(facultyID)
	if s.cache != nil {
		var cached models.FacultyDashboard
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("faculty dashboard cache read failed", zap.Error(err))
		}
	}

	dayStart := startOfToday()
	sessions, err := s.sessions.TodayByFaculty(ctx, facultyID, dayStart)
	if err != nil {
		return nil, unavailable(err)
	}
	dashboard := &models.FacultyDashboard{
		Date:     dayStart.Format("2006-01-02"),
		Sessions: sessions,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, dashboard, s.ttl); err != nil {
			s.logger.Warn("faculty dashboard cache write failed", zap.Error(err))
		}
	}
	return dashboard, nil
}

// Student returns the student's overall attendance standing plus today's
// marks.
func (s *DashboardService) Student(ctx context.Context, studentID string) (*models.StudentDashboard, error) {
	key := studentDashboardKey(studentID)
	if s.cache != nil {
		var cached models.StudentDashboard
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("student dashboard cache read failed", zap.Error(err))
		}
	}

	present, total, err := s.attendance.StudentSummary(ctx, studentID)
	if err != nil {
		return nil, unavailable(err)
	}
	marks, err := s.attendance.StudentMarksSince(ctx, studentID, startOfToday())
	if err != nil {
		return nil, unavailable(err)
	}

	dashboard := &models.StudentDashboard{
		PresentCount: present,
		TotalCount:   total,
		TodayMarks:   marks,
	}
	if total > 0 {
		dashboard.AttendancePercent = float64(present) / float64(total) * 100
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, dashboard, s.ttl); err != nil {
			s.logger.Warn("student dashboard cache write failed", zap.Error(err))
		}
	}
	return dashboard, nil
}

// InvalidateFaculty drops the cached faculty view after a session-affecting
// write. Invalidation failures are logged, never surfaced: the TTL bounds
// staleness anyway.
func (s *DashboardService) InvalidateFaculty(ctx context.Context, facultyID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, facultyDashboardKey(facultyID))
}

// InvalidateStudents drops the cached student views for the given ids.
func (s *DashboardService) InvalidateStudents(ctx context.Context, studentIDs ...string) {
	if s.cache == nil || len(studentIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		keys = append(keys, studentDashboardKey(id))
	}
	_ = s.cache.Delete(ctx, keys...)
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
