// Package web provides the HTTP API for authoring stage workflows, submitting
// pub events and reading the run ledger.
package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/dukex/stageflow/pkg/ledger"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	persistence     persistence.Persistence
	registry        *registry.Registry
	dispatcher      Dispatcher
	validator       *validator.Validate
	stageService    *services.Stage
	ruleService     *services.Rule
	instanceService *services.ActionInstance
	pubService      *services.Pub
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	registry *registry.Registry,
	instanceService *services.ActionInstance,
	dispatcher Dispatcher,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence:     persistence,
		registry:        registry,
		dispatcher:      dispatcher,
		validator:       validator,
		stageService:    services.NewStage(persistence),
		ruleService:     services.NewRule(persistence),
		instanceService: instanceService,
		pubService:      services.NewPub(persistence),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "stageflow API is healthy"
	httpStatus := http.StatusOK
	repository := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "stageflow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repository = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repository,
			"registry":   len(h.registry.ActionKinds()),
		},
		"timestamp": time.Now().UTC(),
	})
}

// Events

func (h *APIHandlers) SubmitEvent(c fiber.Ctx) error {
	var req SubmitEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	dispatch, err := h.dispatcher.Submit(c.Context(), req.Event())
	if err != nil {
		return handleServiceError(c, err)
	}

	return respondDispatch(c, dispatch)
}

func respondDispatch(c fiber.Ctx, dispatch *Dispatch) error {
	if dispatch.Queued {
		return c.Status(fiber.StatusAccepted).JSON(dispatch)
	}

	return c.JSON(dispatch)
}

// Action catalog

func (h *APIHandlers) ListActionKinds(c fiber.Ctx) error {
	return c.JSON(h.registry.ActionKinds())
}

func (h *APIHandlers) ValidateActionConfig(c fiber.Ctx) error {
	var req ValidateConfigRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	merged, fieldErrors, err := h.instanceService.ValidateConfig(c.Params("kind"), req.Config)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownActionKind) {
			return notFound(c, "action_kind_not_found", err.Error())
		}

		return internalError(c, err)
	}

	if fieldErrors == nil {
		fieldErrors = []models.FieldError{}
	}

	return c.JSON(ValidateConfigResponse{
		Valid:  len(fieldErrors) == 0,
		Config: merged,
		Errors: fieldErrors,
	})
}

// Stages

func (h *APIHandlers) ListStages(c fiber.Ctx) error {
	stages, err := h.stageService.List(c.Context(), c.Params("communityId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stages)
}

func (h *APIHandlers) CreateStage(c fiber.Ctx) error {
	var req services.CreateStageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.CommunityID = c.Params("communityId")

	stage, err := h.stageService.Create(c.Context(), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(stage)
}

func (h *APIHandlers) GetStage(c fiber.Ctx) error {
	stage, err := h.stageService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stage)
}

func (h *APIHandlers) UpdateStage(c fiber.Ctx) error {
	var req services.UpdateStageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	stage, err := h.stageService.Update(c.Context(), c.Params("id"), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stage)
}

// DeleteStage removes a stage; pubs still in it are moved to ?migrate_to=.
func (h *APIHandlers) DeleteStage(c fiber.Ctx) error {
	migrated, err := h.stageService.Delete(c.Context(), c.Params("id"), c.Query("migrate_to"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"migrated_pubs": migrated})
}

func (h *APIHandlers) ListStageRules(c fiber.Ctx) error {
	rules, err := h.ruleService.ListByStage(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rules)
}

// Rules

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var req services.CreateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	rule, err := h.ruleService.Create(c.Context(), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, err := h.ruleService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) UpdateRule(c fiber.Ctx) error {
	var req services.UpdateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	rule, err := h.ruleService.Update(c.Context(), c.Params("id"), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	if err := h.ruleService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ListRuleRuns(c fiber.Ctx) error {
	runs, err := h.persistence.RunRepository().ListForRule(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRuleSummary(c fiber.Ctx) error {
	runs, err := h.persistence.RunRepository().ListForRule(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(ledger.Summarize(runs))
}

// Action instances

func (h *APIHandlers) ListActionInstances(c fiber.Ctx) error {
	instances, err := h.instanceService.List(c.Context(), c.Params("communityId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) CreateActionInstance(c fiber.Ctx) error {
	var req services.CreateActionInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.CommunityID = c.Params("communityId")

	instance, err := h.instanceService.Create(c.Context(), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetActionInstance(c fiber.Ctx) error {
	instance, err := h.instanceService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) UpdateActionInstance(c fiber.Ctx) error {
	var req services.UpdateActionInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	instance, err := h.instanceService.Update(c.Context(), c.Params("id"), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) DeleteActionInstance(c fiber.Ctx) error {
	if err := h.instanceService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ListActionInstanceRuns(c fiber.Ctx) error {
	runs, err := h.persistence.RunRepository().ListForInstance(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(runs)
}

// TriggerActionInstance runs an instance manually, without a rule.
func (h *APIHandlers) TriggerActionInstance(c fiber.Ctx) error {
	var req TriggerActionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	instance, err := h.instanceService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	dispatch, err := h.dispatcher.TriggerManual(c.Context(), instance.CommunityID, instance.ID, req.PubID, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return respondDispatch(c, dispatch)
}

// Pubs

// PlacePub stores a pub in a stage and dispatches its pub-entered-stage event.
func (h *APIHandlers) PlacePub(c fiber.Ctx) error {
	var req services.PlacePubRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	pub, event, err := h.pubService.Place(c.Context(), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	dispatch, err := h.dispatcher.Submit(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(PlacePubResponse{Pub: pub, Dispatch: dispatch})
}

func (h *APIHandlers) GetPub(c fiber.Ctx) error {
	pub, err := h.pubService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(pub)
}
