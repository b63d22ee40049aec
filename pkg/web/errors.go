package web

import (
	"errors"

	"github.com/dukex/stageflow/pkg/engine"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// configProblem carries field errors next to the problem details.
type configProblem struct {
	*problems.Problem

	Errors any `json:"errors"`
}

// handleServiceError provides typed error handling for service and engine errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrConfigInvalid):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("config_invalid").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(configProblem{
			Problem: problem,
			Errors:  services.FieldErrors(err),
		})

	case services.IsValidationError(err),
		errors.Is(err, engine.ErrInvalidEvent),
		errors.Is(err, engine.ErrCommunityMismatch),
		errors.Is(err, registry.ErrUnknownActionKind):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsStageNotFound(err):
		return notFound(c, "stage_not_found", "stage not found")

	case persistence.IsRuleNotFound(err):
		return notFound(c, "rule_not_found", "rule not found")

	case persistence.IsActionInstanceNotFound(err):
		return notFound(c, "action_instance_not_found", "action instance not found")

	case persistence.IsPubNotFound(err):
		return notFound(c, "pub_not_found", "pub not found")

	default:
		return internalError(c, err)
	}
}

// FatalDispatchError reports engine errors that mean the event was never processed.
func FatalDispatchError(err error) bool {
	return errors.Is(err, engine.ErrInvalidEvent) ||
		errors.Is(err, engine.ErrCommunityMismatch) ||
		persistence.IsNotFound(err)
}
