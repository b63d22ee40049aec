package web

import "github.com/gofiber/fiber/v3"

// Register mounts the API routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	router.Post("/events", h.SubmitEvent)

	a := router.Group("/actions")
	a.Get("/", h.ListActionKinds)
	a.Post("/:kind/validate", h.ValidateActionConfig)

	c := router.Group("/communities/:communityId")
	c.Get("/stages", h.ListStages)
	c.Post("/stages", h.CreateStage)
	c.Get("/action-instances", h.ListActionInstances)
	c.Post("/action-instances", h.CreateActionInstance)

	s := router.Group("/stages")
	s.Get("/:id", h.GetStage)
	s.Patch("/:id", h.UpdateStage)
	s.Delete("/:id", h.DeleteStage)
	s.Get("/:id/rules", h.ListStageRules)

	r := router.Group("/rules")
	r.Post("/", h.CreateRule)
	r.Get("/:id", h.GetRule)
	r.Patch("/:id", h.UpdateRule)
	r.Delete("/:id", h.DeleteRule)
	r.Get("/:id/runs", h.ListRuleRuns)
	r.Get("/:id/summary", h.GetRuleSummary)

	i := router.Group("/action-instances")
	i.Get("/:id", h.GetActionInstance)
	i.Patch("/:id", h.UpdateActionInstance)
	i.Delete("/:id", h.DeleteActionInstance)
	i.Get("/:id/runs", h.ListActionInstanceRuns)
	i.Post("/:id/trigger", h.TriggerActionInstance)

	p := router.Group("/pubs")
	p.Post("/", h.PlacePub)
	p.Get("/:id", h.GetPub)
}
