// Package memory provides an in-process persistence implementation used by tests
// and embedded deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dukex/stageflow/pkg/ledger"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
)

// Persistence implements persistence.Persistence with maps guarded by a single lock.
type Persistence struct {
	mu        sync.RWMutex
	stages    map[string]models.Stage
	rules     map[string]models.Rule
	instances map[string]models.ActionInstance
	pubs      map[string]models.Pub
	runs      []models.Run
	runIDs    map[string]struct{}
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		stages:    make(map[string]models.Stage),
		rules:     make(map[string]models.Rule),
		instances: make(map[string]models.ActionInstance),
		pubs:      make(map[string]models.Pub),
		runIDs:    make(map[string]struct{}),
	}
}

func (p *Persistence) StageRepository() persistence.StageRepository {
	return &stageRepository{p}
}

func (p *Persistence) RuleRepository() persistence.RuleRepository {
	return &ruleRepository{p}
}

func (p *Persistence) ActionInstanceRepository() persistence.ActionInstanceRepository {
	return &actionInstanceRepository{p}
}

func (p *Persistence) PubRepository() persistence.PubRepository {
	return &pubRepository{p}
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return &runRepository{p}
}

// AllRuns returns every appended run in start order.
func (p *Persistence) AllRuns() []*models.Run {
	return (&runRepository{p}).list(func(models.Run) bool { return true })
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

type stageRepository struct{ p *Persistence }

func (r *stageRepository) GetByID(_ context.Context, id string) (*models.Stage, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	stage, ok := r.p.stages[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "stage", id, persistence.ErrStageNotFound)
	}

	return &stage, nil
}

func (r *stageRepository) ListByCommunity(_ context.Context, communityID string) ([]*models.Stage, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	stages := make([]*models.Stage, 0)

	for _, stage := range r.p.stages {
		if stage.CommunityID == communityID {
			stages = append(stages, &stage)
		}
	}

	sort.Slice(stages, func(i, j int) bool {
		if stages[i].Order != stages[j].Order {
			return stages[i].Order < stages[j].Order
		}

		return stages[i].ID < stages[j].ID
	})

	return stages, nil
}

func (r *stageRepository) Save(_ context.Context, stage *models.Stage) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.stages[stage.ID] = *stage

	return nil
}

func (r *stageRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.stages[id]; !ok {
		return persistence.NewEntityError("Delete", "stage", id, persistence.ErrStageNotFound)
	}

	for _, pub := range r.p.pubs {
		if pub.StageID == id {
			return persistence.NewEntityError("Delete", "stage", id, persistence.ErrStageNotEmpty)
		}
	}

	delete(r.p.stages, id)

	return nil
}

type ruleRepository struct{ p *Persistence }

func (r *ruleRepository) GetByID(_ context.Context, id string) (*models.Rule, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	rule, ok := r.p.rules[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "rule", id, persistence.ErrRuleNotFound)
	}

	return &rule, nil
}

func (r *ruleRepository) ListByCommunity(_ context.Context, communityID string) ([]*models.Rule, error) {
	return r.list(func(rule models.Rule) bool { return rule.CommunityID == communityID }), nil
}

func (r *ruleRepository) ListByEvent(_ context.Context, kind models.EventKind) ([]*models.Rule, error) {
	return r.list(func(rule models.Rule) bool { return rule.Event == kind }), nil
}

func (r *ruleRepository) list(keep func(models.Rule) bool) []*models.Rule {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	rules := make([]*models.Rule, 0)

	for _, rule := range r.p.rules {
		if keep(rule) {
			rules = append(rules, &rule)
		}
	}

	models.SortRules(rules)

	return rules
}

func (r *ruleRepository) Save(_ context.Context, rule *models.Rule) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	r.p.rules[rule.ID] = *rule

	return nil
}

func (r *ruleRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.rules[id]; !ok {
		return persistence.NewEntityError("Delete", "rule", id, persistence.ErrRuleNotFound)
	}

	delete(r.p.rules, id)

	return nil
}

type actionInstanceRepository struct{ p *Persistence }

func (r *actionInstanceRepository) GetByID(_ context.Context, id string) (*models.ActionInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	instance, ok := r.p.instances[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "action_instance", id, persistence.ErrActionInstanceNotFound)
	}

	return &instance, nil
}

func (r *actionInstanceRepository) ListByCommunity(_ context.Context, communityID string) ([]*models.ActionInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	instances := make([]*models.ActionInstance, 0)

	for _, instance := range r.p.instances {
		if instance.CommunityID == communityID {
			instances = append(instances, &instance)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].ID < instances[j].ID
	})

	return instances, nil
}

func (r *actionInstanceRepository) Save(_ context.Context, instance *models.ActionInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.instances[instance.ID] = *instance

	return nil
}

func (r *actionInstanceRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.instances[id]; !ok {
		return persistence.NewEntityError("Delete", "action_instance", id, persistence.ErrActionInstanceNotFound)
	}

	delete(r.p.instances, id)

	return nil
}

type pubRepository struct{ p *Persistence }

func (r *pubRepository) GetByID(_ context.Context, id string) (*models.Pub, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	pub, ok := r.p.pubs[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "pub", id, persistence.ErrPubNotFound)
	}

	return &pub, nil
}

func (r *pubRepository) ListByStage(_ context.Context, stageID string) ([]*models.Pub, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	pubs := make([]*models.Pub, 0)

	for _, pub := range r.p.pubs {
		if pub.StageID == stageID {
			pubs = append(pubs, &pub)
		}
	}

	sort.Slice(pubs, func(i, j int) bool {
		return pubs[i].ID < pubs[j].ID
	})

	return pubs, nil
}

func (r *pubRepository) Save(_ context.Context, pub *models.Pub) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.pubs[pub.ID] = *pub

	return nil
}

func (r *pubRepository) MoveToStage(_ context.Context, pubID, stageID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	pub, ok := r.p.pubs[pubID]
	if !ok {
		return persistence.NewEntityError("MoveToStage", "pub", pubID, persistence.ErrPubNotFound)
	}

	if _, ok := r.p.stages[stageID]; !ok {
		return persistence.NewEntityError("MoveToStage", "stage", stageID, persistence.ErrStageNotFound)
	}

	pub.StageID = stageID
	pub.UpdatedAt = time.Now().UTC()
	r.p.pubs[pubID] = pub

	return nil
}

type runRepository struct{ p *Persistence }

func (r *runRepository) Append(_ context.Context, run *models.Run) (string, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, exists := r.p.runIDs[run.ID]; exists {
		return "", persistence.NewEntityError("Append", "run", run.ID, persistence.ErrRunAlreadyExists)
	}

	r.p.runIDs[run.ID] = struct{}{}
	r.p.runs = append(r.p.runs, *run)

	return run.ID, nil
}

func (r *runRepository) ListForRule(_ context.Context, ruleID string) ([]*models.Run, error) {
	return r.list(func(run models.Run) bool { return run.RuleID == ruleID }), nil
}

func (r *runRepository) ListForInstance(_ context.Context, instanceID string) ([]*models.Run, error) {
	return r.list(func(run models.Run) bool { return run.ActionInstanceID == instanceID }), nil
}

func (r *runRepository) list(keep func(models.Run) bool) []*models.Run {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	runs := make([]*models.Run, 0)

	for _, run := range r.p.runs {
		if keep(run) {
			runs = append(runs, &run)
		}
	}

	ledger.SortRuns(runs)

	return runs
}
