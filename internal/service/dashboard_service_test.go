package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type stubDashboardSessions struct {
	summaries []models.SessionSummary
	calls     int
}

func (s *stubDashboardSessions) TodayByFaculty(ctx context.Context, facultyID string, dayStart time.Time) ([]models.SessionSummary, error) {
	s.calls++
	return s.summaries, nil
}

type stubDashboardAttendance struct {
	present int
	total   int
	marks   []models.StudentMark
	calls   int
}

func (s *stubDashboardAttendance) StudentSummary(ctx context.Context, studentID string) (int, int, error) {
	s.calls++
	return s.present, s.total, nil
}

func (s *stubDashboardAttendance) StudentMarksSince(ctx context.Context, studentID string, since time.Time) ([]models.StudentMark, error) {
	return s.marks, nil
}

type memoryCache struct {
	values map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func TestFacultyDashboardCaches(t *testing.T) {
	sessions := &stubDashboardSessions{summaries: []models.SessionSummary{
		{SessionID: "sess-1", CourseCode: "CS301", PresentCount: 12, Enrolled: 40, Active: true},
	}}
	cache := newMemoryCache()
	svc := NewDashboardService(sessions, &stubDashboardAttendance{}, cache, time.Minute, nil)

	first, err := svc.Faculty(context.Background(), "fac-1")
	require.NoError(t, err)
	require.Len(t, first.Sessions, 1)
	assert.Equal(t, 1, sessions.calls)

	// Second read is served from cache.
	second, err := svc.Faculty(context.Background(), "fac-1")
	require.NoError(t, err)
	assert.Equal(t, first.Sessions, second.Sessions)
	assert.Equal(t, 1, sessions.calls)

	// Invalidation forces the next read back to storage.
	svc.InvalidateFaculty(context.Background(), "fac-1")
	_, err = svc.Faculty(context.Background(), "fac-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sessions.calls)
}

func TestStudentDashboardPercentage(t *testing.T) {
	attendance := &stubDashboardAttendance{
		present: 18,
		total:   24,
		marks: []models.StudentMark{
			{SessionID: "sess-1", CourseCode: "CS301", Status: models.AttendanceStatusPresent},
		},
	}
	svc := NewDashboardService(&stubDashboardSessions{}, attendance, nil, time.Minute, nil)

	dashboard, err := svc.Student(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 18, dashboard.PresentCount)
	assert.Equal(t, 24, dashboard.TotalCount)
	assert.InDelta(t, 75.0, dashboard.AttendancePercent, 0.001)
	assert.Len(t, dashboard.TodayMarks, 1)
}

func TestStudentDashboardNoRecords(t *testing.T) {
	svc := NewDashboardService(&stubDashboardSessions{}, &stubDashboardAttendance{}, nil, time.Minute, nil)

	dashboard, err := svc.Student(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Zero(t, dashboard.AttendancePercent, "no division by zero on empty history")
}

func TestStudentDashboardInvalidation(t *testing.T) {
	attendance := &stubDashboardAttendance{present: 1, total: 2}
	cache := newMemoryCache()
	svc := NewDashboardService(&stubDashboardSessions{}, attendance, cache, time.Minute, nil)

	_, err := svc.Student(context.Background(), "stu-1")
	require.NoError(t, err)
	_, err = svc.Student(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, attendance.calls)

	svc.InvalidateStudents(context.Background(), "stu-1")
	_, err = svc.Student(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, attendance.calls)
}
