package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/repository"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/scheduling"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/services"
)

type stubLessonService struct {
	bookResult   *services.BookingResult
	bookErr      error
	listResult   []models.Lesson
	listErr      error
	getResult    *models.LessonDetail
	getErr       error
	editResult   *models.Lesson
	editErr      error
	statusResult *models.Lesson
	statusErr    error
	deleteErr    error

	lastTutorID      int64
	lastBookingInput services.BookingInput
	lastLessonID     int64
	lastAction       string
	lastFilter       repository.LessonListFilter
	lastSessionID    uuid.UUID
	lastRecurrenceID uuid.UUID
}

func (s *stubLessonService) CreateBooking(_ context.Context, tutorID int64, input services.BookingInput) (*services.BookingResult, error) {
	s.lastTutorID = tutorID
	s.lastBookingInput = input
	return s.bookResult, s.bookErr
}

func (s *stubLessonService) ListLessons(_ context.Context, filter repository.LessonListFilter) ([]models.Lesson, error) {
	s.lastFilter = filter
	return s.listResult, s.listErr
}

func (s *stubLessonService) GetLesson(_ context.Context, tutorID, lessonID int64) (*models.LessonDetail, error) {
	s.lastTutorID = tutorID
	s.lastLessonID = lessonID
	return s.getResult, s.getErr
}

func (s *stubLessonService) EditLesson(_ context.Context, tutorID, lessonID int64, _ services.EditLessonInput) (*models.Lesson, error) {
	s.lastTutorID = tutorID
	s.lastLessonID = lessonID
	return s.editResult, s.editErr
}

func (s *stubLessonService) UpdateLessonStatus(_ context.Context, tutorID, lessonID int64, action string) (*models.Lesson, error) {
	s.lastTutorID = tutorID
	s.lastLessonID = lessonID
	s.lastAction = action
	return s.statusResult, s.statusErr
}

func (s *stubLessonService) UpdateSessionStatus(_ context.Context, tutorID int64, sessionID uuid.UUID, action string) ([]models.Lesson, error) {
	s.lastTutorID = tutorID
	s.lastSessionID = sessionID
	s.lastAction = action
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.listResult, nil
}

func (s *stubLessonService) DeleteLesson(_ context.Context, tutorID, lessonID int64) error {
	s.lastTutorID = tutorID
	s.lastLessonID = lessonID
	return s.deleteErr
}

func (s *stubLessonService) DeleteSession(_ context.Context, tutorID int64, sessionID uuid.UUID) (int64, error) {
	s.lastTutorID = tutorID
	s.lastSessionID = sessionID
	return 2, s.deleteErr
}

func (s *stubLessonService) DeleteSeries(_ context.Context, tutorID int64, recurrenceID uuid.UUID) (int64, error) {
	s.lastTutorID = tutorID
	s.lastRecurrenceID = recurrenceID
	return 5, s.deleteErr
}

func newLessonTestApp(service *stubLessonService) *fiber.App {
	handler := &LessonHandler{service: service}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", "tutor")
		c.Locals("user_id", "7")
		return c.Next()
	})
	app.Post("/api/v1/lessons", handler.BookLessons)
	app.Get("/api/v1/lessons", handler.ListLessons)
	app.Delete("/api/v1/lessons/series/:recurrenceID", handler.DeleteSeries)
	app.Get("/api/v1/lessons/:id", handler.GetLesson)
	app.Put("/api/v1/lessons/:id", handler.UpdateLesson)
	app.Put("/api/v1/lessons/:id/status", handler.UpdateStatus)
	app.Delete("/api/v1/lessons/:id", handler.DeleteLesson)
	app.Put("/api/v1/sessions/:sessionID/status", handler.UpdateSessionStatus)
	app.Delete("/api/v1/sessions/:sessionID", handler.DeleteSession)
	return app
}

func TestBookLessonsCreatesRecurringBooking(t *testing.T) {
	service := &stubLessonService{
		bookResult: &services.BookingResult{
			Policy:  scheduling.PolicyGroup,
			Lessons: []models.Lesson{{ID: 1}, {ID: 2}},
		},
	}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lessons", strings.NewReader(`{
		"members": [
			{"student_id": 10, "subject": "math"},
			{"student_id": 11, "subject": "math"}
		],
		"scheduled_at": "2026-03-02T15:00:00Z",
		"duration_min": 60,
		"recurrence": "weekly",
		"until": "2026-05-25T15:00:00Z"
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastTutorID != 7 {
		t.Fatalf("expected tutor id 7, got %d", service.lastTutorID)
	}
	if len(service.lastBookingInput.Pairs) != 2 {
		t.Fatalf("expected 2 member pairs, got %d", len(service.lastBookingInput.Pairs))
	}
	if service.lastBookingInput.Recurrence != scheduling.RuleWeekly {
		t.Fatalf("expected weekly recurrence, got %s", service.lastBookingInput.Recurrence)
	}
	if service.lastBookingInput.Until == nil {
		t.Fatal("expected until to be passed through")
	}
}

func TestBookLessonsRejectsBadRecurrence(t *testing.T) {
	service := &stubLessonService{}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lessons", strings.NewReader(`{
		"members": [{"student_id": 10, "subject": "math"}],
		"scheduled_at": "2026-03-02T15:00:00Z",
		"duration_min": 60,
		"recurrence": "fortnightly"
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestBookLessonsReturnsConflict(t *testing.T) {
	service := &stubLessonService{bookErr: services.ErrConflict}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lessons", strings.NewReader(`{
		"members": [{"student_id": 10, "subject": "piano"}],
		"scheduled_at": "2026-03-02T15:00:00Z",
		"duration_min": 30
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestBookLessonsForbiddenWithoutTutorRole(t *testing.T) {
	handler := &LessonHandler{service: &stubLessonService{}}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", "parent")
		c.Locals("user_id", "7")
		return c.Next()
	})
	app.Post("/api/v1/lessons", handler.BookLessons)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lessons", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestListLessonsParsesFilters(t *testing.T) {
	service := &stubLessonService{listResult: []models.Lesson{{ID: 3}}}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/lessons?status=completed&student_id=10&from=2026-03-01T00:00:00Z&to=2026-04-01T00:00:00Z", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastFilter.Status != models.LessonStatusCompleted {
		t.Fatalf("expected completed filter, got %q", service.lastFilter.Status)
	}
	if service.lastFilter.StudentID != 10 {
		t.Fatalf("expected student filter 10, got %d", service.lastFilter.StudentID)
	}
	if service.lastFilter.From.IsZero() || service.lastFilter.To.IsZero() {
		t.Fatal("expected date range to be parsed")
	}

	var body struct {
		Lessons []models.Lesson `json:"lessons"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Lessons) != 1 || body.Lessons[0].ID != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestUpdateStatusPassesAction(t *testing.T) {
	service := &stubLessonService{statusResult: &models.Lesson{ID: 5, Status: models.LessonStatusCompleted}}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/lessons/5/status",
		strings.NewReader(`{"action": "complete"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastLessonID != 5 || service.lastAction != "complete" {
		t.Fatalf("unexpected call: lesson %d action %q", service.lastLessonID, service.lastAction)
	}
}

func TestUpdateStatusBilledLessonIsConflict(t *testing.T) {
	service := &stubLessonService{statusErr: services.ErrLessonBilled}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/lessons/5/status",
		strings.NewReader(`{"action": "cancel"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestUpdateSessionStatusParsesUUID(t *testing.T) {
	service := &stubLessonService{listResult: []models.Lesson{{ID: 1}, {ID: 2}}}
	app := newLessonTestApp(service)

	sessionID := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+sessionID.String()+"/status",
		strings.NewReader(`{"action": "cancel"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSessionID != sessionID {
		t.Fatalf("expected session %s, got %s", sessionID, service.lastSessionID)
	}
}

func TestDeleteSeriesReturnsCount(t *testing.T) {
	service := &stubLessonService{}
	app := newLessonTestApp(service)

	recurrenceID := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/lessons/series/"+recurrenceID.String(), nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastRecurrenceID != recurrenceID {
		t.Fatalf("expected recurrence %s, got %s", recurrenceID, service.lastRecurrenceID)
	}

	var body struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Deleted != 5 {
		t.Fatalf("expected 5 deleted, got %d", body.Deleted)
	}
}

func TestDeleteLessonNotFound(t *testing.T) {
	service := &stubLessonService{deleteErr: services.ErrNotFound}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/lessons/99", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdateLessonParsesBody(t *testing.T) {
	service := &stubLessonService{editResult: &models.Lesson{ID: 4, DurationMinutes: 45}}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/lessons/4", strings.NewReader(`{
		"scheduled_at": "2026-03-02T16:00:00Z",
		"duration_min": 45
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastLessonID != 4 {
		t.Fatalf("expected lesson 4, got %d", service.lastLessonID)
	}
}

func TestGetLessonIncludesBillingLink(t *testing.T) {
	amount := 70.0
	service := &stubLessonService{getResult: &models.LessonDetail{
		Lesson:       models.Lesson{ID: 8, ScheduledAt: time.Date(2026, time.March, 2, 15, 0, 0, 0, time.UTC)},
		Billed:       true,
		BilledAmount: &amount,
	}}
	app := newLessonTestApp(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lessons/8", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Lesson models.LessonDetail `json:"lesson"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Lesson.Billed || body.Lesson.BilledAmount == nil || *body.Lesson.BilledAmount != 70 {
		t.Fatalf("unexpected billing info: %+v", body.Lesson)
	}
}
