package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-intake/internal/observability"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

func TestErrorMiddlewareLogsRejectionCode(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	metrics := observability.NewMetrics()
	app := fiber.New()
	app.Use(errorHandlingMiddleware(zap.New(core), metrics))
	app.Post("/api/review", func(c *fiber.Ctx) error {
		return apperrors.NewInvalidComment("Comment is too short (3 words). Minimum 15 words required.",
			map[string]any{"corrected_comment": "Restarted the pool and will monitor it."})
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("disk gone")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/review", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, resp.StatusCode)
	}
	rejected := logs.FilterMessage("request rejected").All()
	if len(rejected) != 1 {
		t.Fatalf("rejected entries: want=1 got=%d", len(rejected))
	}
	fields := rejected[0].ContextMap()
	if fields["code"] != apperrors.CodeInvalidComment {
		t.Fatalf("code: want=%q got=%v", apperrors.CodeInvalidComment, fields["code"])
	}
	if fields["corrected_comment"] != "Restarted the pool and will monitor it." {
		t.Fatalf("corrected_comment: got=%v", fields["corrected_comment"])
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: want=%d got=%d", http.StatusInternalServerError, resp.StatusCode)
	}
	failed := logs.FilterMessage("request failed").All()
	if len(failed) != 1 || failed[0].Level != zapcore.ErrorLevel {
		t.Fatalf("failed entries: %+v", failed)
	}
	if failed[0].ContextMap()["code"] != apperrors.CodeInternal {
		t.Fatalf("code: got=%v", failed[0].ContextMap()["code"])
	}
}

func TestErrorMiddlewareCountsByRoutePattern(t *testing.T) {
	metrics := observability.NewMetrics()
	app := fiber.New()
	app.Use(errorHandlingMiddleware(zap.NewNop(), metrics))
	app.Get("/api/tickets/:ticketNo", func(c *fiber.Ctx) error {
		return apperrors.NewNotFound("ticket", nil)
	})

	for _, no := range []string{"TICKET-0001", "TICKET-0002"} {
		if _, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/tickets/"+no, nil), -1); err != nil {
			t.Fatalf("request: %v", err)
		}
	}
	errs := metrics.Snapshot().Errors
	if len(errs) != 1 || errs[0].Path != "/api/tickets/:ticketNo" || errs[0].Count != 2 {
		t.Fatalf("errors: %+v", errs)
	}
}
