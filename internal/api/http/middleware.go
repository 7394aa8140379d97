package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/observability"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
// The request logger sits outside the error handler so it sees the rendered status.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(requestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}

// ErrorHandler renders errors raised outside the middleware chain, such as
// oversized request bodies rejected by the server.
func ErrorHandler(logger *zap.Logger, metrics *observability.Metrics) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		renderError(c, err, logger, metrics)
		return nil
	}
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
				renderError(c, err, logger, metrics)
				err = nil
			}
		}()
		return c.Next()
	}
}

func renderError(c *fiber.Ctx, err error, logger *zap.Logger, metrics *observability.Metrics) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		err = fromFiberError(fiberErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperrors.NewDomainError("TIMEOUT", "request timed out", http.StatusGatewayTimeout, nil)
	}

	domainErr := apperrors.ToDomainError(err)
	metrics.RecordError(routeLabel(c), c.Method(), domainErr.Code)

	response := fiber.Map{"error": fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}}
	if len(domainErr.Details) > 0 {
		response["error"].(fiber.Map)["details"] = domainErr.Details
	}
	if domainErr.HTTPStatus >= 500 {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("request_id", requestID(c)),
			zap.Error(domainErr))
	}
	c.Status(domainErr.HTTPStatus)
	_ = c.JSON(response)
}

func fromFiberError(fe *fiber.Error) error {
	switch fe.Code {
	case http.StatusNotFound:
		return apperrors.NewNotFound("route", nil)
	case http.StatusRequestEntityTooLarge:
		return apperrors.NewPayloadTooLarge("request body too large", nil)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.NewValidationError(fe.Message, nil)
	}
	code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_"))
	return apperrors.NewDomainError(code, fe.Message, fe.Code, nil)
}

func requestLogger(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()

		metrics.RecordRequest(routeLabel(c), c.Method(), status, duration)
		logger.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", duration),
			zap.String("request_id", requestID(c)))
		return err
	}
}

// routeLabel keeps metric cardinality bounded by using the matched route pattern.
func routeLabel(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	return "unmatched"
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
