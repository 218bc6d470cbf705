package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/petstore-api/internal/api/dto"
	"github.com/spec-kit/petstore-api/internal/service"
)

const invalidCredentialsMessage = "Invalid credentials"

// LoginHandler exposes the login endpoint.
type LoginHandler struct {
	auth *service.AuthService
}

// NewLoginHandler constructs handler.
func NewLoginHandler(authService *service.AuthService) *LoginHandler {
	return &LoginHandler{auth: authService}
}

// Login handles POST /api/login.
func (h *LoginHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return c.Status(http.StatusUnauthorized).JSON(dto.ErrorResponse{Error: invalidCredentialsMessage})
	}
	if err != nil {
		return err
	}

	return c.JSON(dto.LoginResponse{ID: res.UserID, Email: res.Email, Token: res.Token})
}
