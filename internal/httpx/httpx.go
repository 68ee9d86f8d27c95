package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
)

// CallerKey is the fiber local holding the authenticated caller address.
const CallerKey = "caller"

// RequestIDKey is the fiber local holding the request identifier.
const RequestIDKey = "X-Request-ID"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bind parses the JSON body into dst and runs its validate tags.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Caller returns the authenticated account placed in the context by the auth middleware.
func Caller(c *fiber.Ctx) (account.Address, error) {
	caller, _ := c.Locals(CallerKey).(account.Address)
	if caller.IsNull() {
		return account.Null, fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	return caller, nil
}

// Address parses a path or body address, turning failures into 400s.
func Address(raw string) (account.Address, error) {
	a, err := account.Parse(raw)
	if err != nil {
		return account.Null, Error(err)
	}
	return a, nil
}

// Error converts a domain error into a fiber error with the mapped status.
func Error(err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	return fiber.NewError(apperrors.HTTPStatus(err), err.Error())
}

// ErrorHandler renders every error as {"error": ..., "request_id": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	body := fiber.Map{"error": err.Error()}
	if reqID, _ := c.Locals(RequestIDKey).(string); reqID != "" {
		body["request_id"] = reqID
	}
	return c.Status(code).JSON(body)
}
