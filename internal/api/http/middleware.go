package http

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/observability"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := apperrors.ToDomainError(err)
				metrics.RecordError(routePath(c), c.Method(), domainErr.Code)
				response := fiber.Map{"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}}
				if len(domainErr.Details) > 0 {
					response["error"].(fiber.Map)["details"] = domainErr.Details
				}
				logRejection(logger, c, domainErr)
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(response)
				err = nil
			}
		}()
		return c.Next()
	}
}

// logRejection logs server failures at error level and client rejections
// at info with the error code, so gate and lookup failures are visible in logs.
func logRejection(logger *zap.Logger, c *fiber.Ctx, domainErr *apperrors.DomainError) {
	fields := []zap.Field{
		zap.String("code", domainErr.Code),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", domainErr.HTTPStatus),
	}
	if domainErr.HTTPStatus >= 500 {
		logger.Error("request failed", append(fields, zap.Error(domainErr))...)
		return
	}
	if corrected, ok := domainErr.Details["corrected_comment"].(string); ok && corrected != "" {
		fields = append(fields, zap.String("corrected_comment", corrected))
	}
	logger.Info("request rejected", append(fields, zap.String("reason", domainErr.Message))...)
}

func routePath(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
		return route.Path
	}
	return c.Path()
}
