package handlers

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachCareBack/internal/middleware"
	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/repository"
	"github.com/saeid-a/CoachCareBack/pkg/utils"
	"go.uber.org/zap"
)

type accountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

const maxPasswordBytes = 72

type AuthHandler struct {
	users     accountStore
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthHandler(users accountStore, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

type registerRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register always creates a client; coach and admin roles are granted by an
// admin afterwards.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid email format"})
	}
	if len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "Password must be at least 8 characters"})
	}
	// bcrypt refuses longer inputs.
	if len(req.Password) > maxPasswordBytes {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "Password must be at most 72 bytes"})
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to hash password"})
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hashed,
		Role:         models.RoleClient,
		FullName:     trimmedOrNil(req.FullName),
		Phone:        trimmedOrNil(req.Phone),
	}
	if err := h.users.CreateUser(c.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return c.Status(fiber.StatusConflict).
				JSON(fiber.Map{"error": "Email already exists"})
		}
		middleware.LoggerFrom(c).Error("create user failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to create user"})
	}

	return h.respondWithToken(c, fiber.StatusCreated, user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid email format"})
	}

	user, err := h.users.GetByEmail(c.Context(), email)
	if err != nil {
		if repository.IsNotFound(err) {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"error": "Invalid email or password"})
		}
		middleware.LoggerFrom(c).Error("lookup user failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to lookup user"})
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return c.Status(fiber.StatusUnauthorized).
			JSON(fiber.Map{"error": "Invalid email or password"})
	}

	return h.respondWithToken(c, fiber.StatusOK, user)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	user, err := h.users.GetByID(c.Context(), userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		middleware.LoggerFrom(c).Error("fetch user failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch user"})
	}

	return c.JSON(fiber.Map{
		"user":           user,
		"can_message":    user.CanMessage(),
		"has_chat_coach": user.AssignedChatDoctorID != nil,
	})
}

func (h *AuthHandler) respondWithToken(c *fiber.Ctx, status int, user *models.User) error {
	token, err := utils.GenerateToken(strconv.FormatInt(user.ID, 10), user.Role, h.jwtSecret, h.tokenTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to generate token"})
	}

	return c.Status(status).JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

func normalizeEmail(raw string) (string, bool) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return strings.ToLower(parsed.Address), true
}
