package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/medtreasury/medtreasury/internal/auth"
	"github.com/medtreasury/medtreasury/internal/httpx"
	"github.com/medtreasury/medtreasury/internal/logging"
)

func TestAuthSetsCaller(t *testing.T) {
	signer := auth.NewSigner("secret", "test", time.Minute)
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
	app.Use(Auth(signer, logging.Discard()))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		caller, err := httpx.Caller(c)
		if err != nil {
			return err
		}
		return c.SendString(caller.String())
	})

	token, _, err := signer.Sign("0xd0c")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"garbage", "Bearer nope", fiber.StatusUnauthorized},
		{"valid", "Bearer " + token, fiber.StatusOK},
		{"lower case scheme", "bearer " + token, fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: app.Test: %v", tc.name, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, resp.StatusCode)
		}
	}
}
