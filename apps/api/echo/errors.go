package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/asset"
	"github.com/trezcool/tribunal/core/editor"
	"github.com/trezcool/tribunal/core/proposal"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

var voteErrorCodes = map[proposal.VoteErrorKind]int{
	proposal.NotEligible:   http.StatusForbidden,
	proposal.NotAuthorized: http.StatusForbidden,
	proposal.AlreadyVoted:  http.StatusConflict,
	proposal.NotPending:    http.StatusConflict,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.ShutdownError is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *proposal.SubmitError:
			code = http.StatusUnprocessableEntity
			message = echo.Map{"error": origErr.Error(), "kind": origErr.Kind, "module": origErr.Module}
		case *proposal.VoteError:
			code = voteErrorCodes[origErr.Kind]
			message = echo.Map{"error": origErr.Error(), "kind": origErr.Kind}
		default:
			switch {
			case errors.Is(err, proposal.ErrNotFound), errors.Is(err, editor.ErrBlockNotFound):
				code, message = http.StatusNotFound, origErr.Error()
			case errors.Is(err, proposal.ErrNotAuthor):
				code, message = http.StatusForbidden, origErr.Error()
			case errors.Is(err, proposal.ErrNotDraft), errors.Is(err, proposal.ErrConflict):
				code, message = http.StatusConflict, origErr.Error()
			case errors.Is(err, proposal.ErrNotApproved):
				code, message = http.StatusNotFound, origErr.Error()
			case errors.Is(err, asset.ErrEmpty), errors.Is(err, asset.ErrType), errors.Is(err, editor.ErrNotMedia):
				code, message = http.StatusBadRequest, err.Error()
			case errors.Is(err, asset.ErrTooLarge):
				code, message = http.StatusRequestEntityTooLarge, err.Error()
			case core.IsShutdown(err):
				code = http.StatusServiceUnavailable
				message = http.StatusText(code)
				logServerError(logger, ctx, err, message.(string))

				// shutting down...
				signalShutdown()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				message = http.StatusText(code)
				logServerError(logger, ctx, err, message.(string))
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func logServerError(logger core.Logger, ctx echo.Context, err error, msg string) {
	args := []interface{}{errors.Wrap(err, msg), map[string]interface{}{"path": ctx.Path()}}
	if claims, cErr := getContextClaims(ctx); cErr == nil {
		args = append(args, claims.Author())
	}
	logger.Error(msg, args...)
}
