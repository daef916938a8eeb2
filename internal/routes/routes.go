package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/config"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/handlers"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/middleware"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/repository"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/services"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	lessonRepo := repository.NewLessonRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	familyRepo := repository.NewFamilyRepository(db)
	settingsRepo := repository.NewRateSettingsRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)

	scheduleService := services.NewScheduleService(db, lessonRepo, paymentRepo, settingsRepo, availabilityRepo, cfg.BusinessTZ)
	invoiceService := services.NewInvoiceService(db, paymentRepo, lessonRepo, familyRepo, settingsRepo, cfg.BusinessTZ)
	summaryService := services.NewSummaryService(lessonRepo, familyRepo, paymentRepo, settingsRepo, cfg.BusinessTZ)

	lessonHandler := handlers.NewLessonHandler(scheduleService)
	scheduleHandler := handlers.NewScheduleHandler(scheduleService, cfg.BusinessTZ)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceService)
	summaryHandler := handlers.NewSummaryHandler(summaryService)
	ratesHandler := handlers.NewRatesHandler(settingsRepo)

	api := app.Group("/api")
	protected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	lessons := protected.Group("/lessons")
	lessons.Post("", lessonHandler.BookLessons)
	lessons.Get("", lessonHandler.ListLessons)
	lessons.Delete("/series/:recurrenceID", lessonHandler.DeleteSeries)
	lessons.Get("/:id", lessonHandler.GetLesson)
	lessons.Put("/:id", lessonHandler.UpdateLesson)
	lessons.Put("/:id/status", lessonHandler.UpdateStatus)
	lessons.Delete("/:id", lessonHandler.DeleteLesson)

	sessions := protected.Group("/sessions")
	sessions.Put("/:sessionID/status", lessonHandler.UpdateSessionStatus)
	sessions.Delete("/:sessionID", lessonHandler.DeleteSession)

	schedule := protected.Group("/schedule")
	schedule.Get("/free-slots", scheduleHandler.FreeSlots)
	schedule.Get("/conflict", scheduleHandler.CheckConflict)

	invoices := protected.Group("/invoices")
	invoices.Post("", invoiceHandler.GenerateInvoice)
	invoices.Get("", invoiceHandler.ListInvoices)
	invoices.Get("/:id", invoiceHandler.GetInvoice)
	invoices.Post("/:id/payments", invoiceHandler.RecordPayment)

	reports := protected.Group("/reports")
	reports.Get("/monthly-summary", summaryHandler.MonthlySummary)

	settings := protected.Group("/settings")
	settings.Get("/rates", ratesHandler.GetRates)
	settings.Put("/rates", ratesHandler.UpdateRates)
}
