package http

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"stockfish/internal/fen"
	"stockfish/internal/server/core"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("fen", func(fl validator.FieldLevel) bool {
		return isFENSafe(fl.Field().String())
	})
	_ = v.RegisterValidation("ucimove", func(fl validator.FieldLevel) bool {
		return isMoveSafe(fl.Field().String())
	})
	return v
}

// validationMiddleware parses and validates JSON bodies for known routes and
// stores the result in Locals("validatedBody").
func validationMiddleware(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.Next()
	}

	path := strings.TrimSuffix(c.Path(), "/")
	var requestType interface{}

	switch {
	case strings.HasSuffix(path, "/analyses"):
		requestType = &core.AnalysisRequest{}
	case strings.HasSuffix(path, "/positions"):
		requestType = &core.PositionRequest{}
	default:
		return c.Next()
	}

	// An empty body means "all defaults".
	if len(c.Body()) > 0 {
		if err := c.BodyParser(requestType); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
				Error:   "invalid request body",
				Code:    core.ErrInvalidRequest,
				Details: err.Error(),
			})
		}
	}

	if errs := validate.Struct(requestType); errs != nil {
		verrs, ok := errs.(validator.ValidationErrors)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
				Error:   "validation failed",
				Code:    core.ErrInvalidRequest,
				Details: errs.Error(),
			})
		}

		code := core.ErrInvalidRequest
		var details strings.Builder
		for _, err := range verrs {
			if details.Len() > 0 {
				details.WriteString("; ")
			}
			switch err.Tag() {
			case "fen":
				code = core.ErrInvalidFEN
				details.WriteString(fmt.Sprintf("%s is not a valid FEN", err.Field()))
			case "ucimove":
				code = core.ErrInvalidMove
				details.WriteString(fmt.Sprintf("%s must be a UCI move such as e2e4 or e7e8q", err.Field()))
			case "oneof":
				details.WriteString(fmt.Sprintf("%s must be one of [%s]", err.Field(), err.Param()))
			case "min":
				details.WriteString(fmt.Sprintf("%s must be at least %s", err.Field(), err.Param()))
			case "max":
				if err.Type().Kind() == reflect.String {
					details.WriteString(fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param()))
				} else if err.Type().Kind() == reflect.Slice {
					details.WriteString(fmt.Sprintf("%s must have at most %s entries", err.Field(), err.Param()))
				} else {
					details.WriteString(fmt.Sprintf("%s must be at most %s", err.Field(), err.Param()))
				}
			default:
				details.WriteString(fmt.Sprintf("%s failed %s validation", err.Field(), err.Tag()))
			}
		}

		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "validation failed",
			Code:    code,
			Details: details.String(),
		})
	}

	c.Locals("validatedBody", requestType)
	c.Locals("validated", true)

	return c.Next()
}

// validatedBody fetches the body stored by validationMiddleware.
func validatedBody[T any](c *fiber.Ctx) (T, bool) {
	var zero T
	if validated, ok := c.Locals("validated").(bool); !ok || !validated {
		return zero, false
	}
	body, ok := c.Locals("validatedBody").(*T)
	if !ok || body == nil {
		return zero, false
	}
	return *body, true
}

// isFENSafe rejects control characters, which could smuggle extra commands
// onto the engine's stdin, and anything that does not parse as a FEN.
func isFENSafe(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	_, err := fen.Parse(s)
	return err == nil
}

// isMoveSafe checks the shape of a UCI move: [a-h][1-8][a-h][1-8][qrbn]?
func isMoveSafe(move string) bool {
	if len(move) < 4 || len(move) > 5 {
		return false
	}

	if move[0] < 'a' || move[0] > 'h' ||
		move[1] < '1' || move[1] > '8' ||
		move[2] < 'a' || move[2] > 'h' ||
		move[3] < '1' || move[3] > '8' {
		return false
	}

	if len(move) == 5 {
		promotion := move[4]
		if promotion != 'q' && promotion != 'r' && promotion != 'b' && promotion != 'n' {
			return false
		}
	}

	return true
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
