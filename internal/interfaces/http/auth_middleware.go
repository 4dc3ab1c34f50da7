package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/pkg/jwt"
)

// Locals donde queda la identidad del llamador: el actor de cada asiento y el propietario
// que delimita todo el libro.
const (
	LocalUserID  = "user_id"
	LocalOwnerID = "owner_id"
)

// AuthMiddleware exige un Bearer JWT firmado con jwtSecret. Los tokens los emite otro servicio;
// aquí solo se verifican.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, code, msg := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return reject(c, code, msg)
		}
		userID, ownerID, err := jwt.Parse(jwtSecret, token)
		if err != nil {
			return reject(c, "INVALID_TOKEN", "token inválido o expirado")
		}
		c.Locals(LocalUserID, userID)
		c.Locals(LocalOwnerID, ownerID)
		return c.Next()
	}
}

func bearerToken(header string) (token, code, msg string) {
	if header == "" {
		return "", "MISSING_TOKEN", "Authorization header requerido"
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "INVALID_TOKEN", "formato: Bearer <token>"
	}
	if token = strings.TrimSpace(rest); token == "" {
		return "", "MISSING_TOKEN", "token vacío"
	}
	return token, "", ""
}

func reject(c *fiber.Ctx, code, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: code, Message: msg})
}

// GetUserID actor autenticado (vacío fuera del grupo protegido).
func GetUserID(c *fiber.Ctx) string {
	s, _ := c.Locals(LocalUserID).(string)
	return s
}

// GetOwnerID propietario del inventario autenticado.
func GetOwnerID(c *fiber.Ctx) string {
	s, _ := c.Locals(LocalOwnerID).(string)
	return s
}
