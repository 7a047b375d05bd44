package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/observability"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), time.Second)
	return app
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	app := newTestApp()
	app.Get("/secret", BearerAuth("s3cret"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/secret", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestBearerAuthRejectsBadTokens(t *testing.T) {
	app := newTestApp()
	app.Get("/secret", BearerAuth("s3cret"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	cases := map[string]string{
		"wrong token":  "Bearer nope",
		"no scheme":    "s3cret",
		"empty header": "",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/secret", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestBearerAuthEmptyTokenLocksSurface(t *testing.T) {
	app := newTestApp()
	app.Get("/secret", BearerAuth(""), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/secret", nil)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestErrorHandlingMiddlewareMapsDomainErrors(t *testing.T) {
	app := newTestApp()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return apperrors.NewNotATicketChannel("chan-1")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestErrorHandlingMiddlewareRecoversPanics(t *testing.T) {
	app := newTestApp()
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("unexpected")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
