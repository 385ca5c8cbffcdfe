package errorhandler

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	"github.com/gofiber/fiber/v2"
)

// NewHTTPErrorHandler renders errors as a common.HttpResponse.
func NewHTTPErrorHandler() func(ctx *fiber.Ctx, err error) error {
	return func(ctx *fiber.Ctx, err error) error {
		if e := new(fiber.Error); errors.As(err, &e) {
			return errors.WithStack(ctx.Status(e.Code).JSON(errorResponse(e.Message)))
		}
		if errors.Is(err, errs.Closed) {
			return errors.WithStack(ctx.Status(http.StatusServiceUnavailable).JSON(errorResponse(err.Error())))
		}

		logger.ErrorContext(ctx.UserContext(), "Something went wrong, unhandled api error", err,
			slogx.String("event", "api_unhandled_error"),
		)

		return errors.WithStack(ctx.Status(http.StatusInternalServerError).JSON(errorResponse("Internal Server Error")))
	}
}

func errorResponse(message string) common.HttpResponse[any] {
	return common.HttpResponse[any]{Error: &message}
}
