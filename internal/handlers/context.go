package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// parseTutorID reads the acting tutor from the token claims the auth
// middleware stored in locals. Every mutating route threads this id into the
// service layer explicitly.
func parseTutorID(c *fiber.Ctx) (int64, error) {
	userIDValue := c.Locals("user_id")
	userIDStr, ok := userIDValue.(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(userIDStr, 10, 64)
}

func requireTutor(c *fiber.Ctx) (int64, bool) {
	role, ok := c.Locals("role").(string)
	if !ok || role != "tutor" {
		return 0, false
	}
	tutorID, err := parseTutorID(c)
	if err != nil || tutorID <= 0 {
		return 0, false
	}
	return tutorID, true
}
