// Package file provides file-based persistence storing one JSON document per entity.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/stageflow/pkg/ledger"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string

	// mu serialises read-modify-write sequences such as pub moves.
	mu sync.Mutex

	stages    documents[models.Stage]
	rules     documents[models.Rule]
	instances documents[models.ActionInstance]
	pubs      documents[models.Pub]
	runs      documents[models.Run]
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:      cleanRoot,
		stages:    newDocuments[models.Stage](cleanRoot, "stages"),
		rules:     newDocuments[models.Rule](cleanRoot, "rules"),
		instances: newDocuments[models.ActionInstance](cleanRoot, "action_instances"),
		pubs:      newDocuments[models.Pub](cleanRoot, "pubs"),
		runs:      newDocuments[models.Run](cleanRoot, "runs"),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) StageRepository() persistence.StageRepository {
	return &stageRepository{fp}
}

func (fp *Persistence) RuleRepository() persistence.RuleRepository {
	return &ruleRepository{fp}
}

func (fp *Persistence) ActionInstanceRepository() persistence.ActionInstanceRepository {
	return &actionInstanceRepository{fp}
}

func (fp *Persistence) PubRepository() persistence.PubRepository {
	return &pubRepository{fp}
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return &runRepository{fp}
}

// notFound maps a missing file to the entity sentinel.
func notFound(op, entity, id string, err, sentinel error) error {
	if errors.Is(err, os.ErrNotExist) {
		return persistence.NewEntityError(op, entity, id, sentinel)
	}

	return persistence.NewEntityError(op, entity, id, err)
}

type stageRepository struct{ fp *Persistence }

func (r *stageRepository) GetByID(_ context.Context, id string) (*models.Stage, error) {
	stage, err := r.fp.stages.read(id)
	if err != nil {
		return nil, notFound("GetByID", "stage", id, err, persistence.ErrStageNotFound)
	}

	return stage, nil
}

func (r *stageRepository) ListByCommunity(_ context.Context, communityID string) ([]*models.Stage, error) {
	stages, err := r.fp.stages.list(func(s *models.Stage) bool { return s.CommunityID == communityID })
	if err != nil {
		return nil, err
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
	now := time.Now().UTC()
	if stage.CreatedAt.IsZero() {
		stage.CreatedAt = now
	}

	stage.UpdatedAt = now

	return r.fp.stages.write(stage.ID, stage)
}

func (r *stageRepository) Delete(_ context.Context, id string) error {
	r.fp.mu.Lock()
	defer r.fp.mu.Unlock()

	if _, err := r.fp.stages.read(id); err != nil {
		return notFound("Delete", "stage", id, err, persistence.ErrStageNotFound)
	}

	pubs, err := r.fp.pubs.list(func(p *models.Pub) bool { return p.StageID == id })
	if err != nil {
		return err
	}

	if len(pubs) > 0 {
		return persistence.NewEntityError("Delete", "stage", id, persistence.ErrStageNotEmpty)
	}

	return r.fp.stages.remove(id)
}

type ruleRepository struct{ fp *Persistence }

func (r *ruleRepository) GetByID(_ context.Context, id string) (*models.Rule, error) {
	rule, err := r.fp.rules.read(id)
	if err != nil {
		return nil, notFound("GetByID", "rule", id, err, persistence.ErrRuleNotFound)
	}

	return rule, nil
}

func (r *ruleRepository) ListByCommunity(_ context.Context, communityID string) ([]*models.Rule, error) {
	return r.list(func(rule *models.Rule) bool { return rule.CommunityID == communityID })
}

func (r *ruleRepository) ListByEvent(_ context.Context, kind models.EventKind) ([]*models.Rule, error) {
	return r.list(func(rule *models.Rule) bool { return rule.Event == kind })
}

func (r *ruleRepository) list(keep func(*models.Rule) bool) ([]*models.Rule, error) {
	rules, err := r.fp.rules.list(keep)
	if err != nil {
		return nil, err
	}

	models.SortRules(rules)

	return rules, nil
}

func (r *ruleRepository) Save(_ context.Context, rule *models.Rule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	return r.fp.rules.write(rule.ID, rule)
}

func (r *ruleRepository) Delete(_ context.Context, id string) error {
	if err := r.fp.rules.remove(id); err != nil {
		return notFound("Delete", "rule", id, err, persistence.ErrRuleNotFound)
	}

	return nil
}

type actionInstanceRepository struct{ fp *Persistence }

func (r *actionInstanceRepository) GetByID(_ context.Context, id string) (*models.ActionInstance, error) {
	instance, err := r.fp.instances.read(id)
	if err != nil {
		return nil, notFound("GetByID", "action_instance", id, err, persistence.ErrActionInstanceNotFound)
	}

	return instance, nil
}

func (r *actionInstanceRepository) ListByCommunity(_ context.Context, communityID string) ([]*models.ActionInstance, error) {
	instances, err := r.fp.instances.list(func(i *models.ActionInstance) bool { return i.CommunityID == communityID })
	if err != nil {
		return nil, err
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].ID < instances[j].ID
	})

	return instances, nil
}

func (r *actionInstanceRepository) Save(_ context.Context, instance *models.ActionInstance) error {
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	return r.fp.instances.write(instance.ID, instance)
}

func (r *actionInstanceRepository) Delete(_ context.Context, id string) error {
	if err := r.fp.instances.remove(id); err != nil {
		return notFound("Delete", "action_instance", id, err, persistence.ErrActionInstanceNotFound)
	}

	return nil
}

type pubRepository struct{ fp *Persistence }

func (r *pubRepository) GetByID(_ context.Context, id string) (*models.Pub, error) {
	pub, err := r.fp.pubs.read(id)
	if err != nil {
		return nil, notFound("GetByID", "pub", id, err, persistence.ErrPubNotFound)
	}

	return pub, nil
}

func (r *pubRepository) ListByStage(_ context.Context, stageID string) ([]*models.Pub, error) {
	pubs, err := r.fp.pubs.list(func(p *models.Pub) bool { return p.StageID == stageID })
	if err != nil {
		return nil, err
	}

	sort.Slice(pubs, func(i, j int) bool {
		return pubs[i].ID < pubs[j].ID
	})

	return pubs, nil
}

func (r *pubRepository) Save(_ context.Context, pub *models.Pub) error {
	pub.UpdatedAt = time.Now().UTC()

	return r.fp.pubs.write(pub.ID, pub)
}

func (r *pubRepository) MoveToStage(_ context.Context, pubID, stageID string) error {
	r.fp.mu.Lock()
	defer r.fp.mu.Unlock()

	pub, err := r.fp.pubs.read(pubID)
	if err != nil {
		return notFound("MoveToStage", "pub", pubID, err, persistence.ErrPubNotFound)
	}

	if _, err := r.fp.stages.read(stageID); err != nil {
		return notFound("MoveToStage", "stage", stageID, err, persistence.ErrStageNotFound)
	}

	pub.StageID = stageID
	pub.UpdatedAt = time.Now().UTC()

	return r.fp.pubs.write(pub.ID, pub)
}

type runRepository struct{ fp *Persistence }

func (r *runRepository) Append(_ context.Context, run *models.Run) (string, error) {
	if err := r.fp.runs.create(run.ID, run); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", persistence.NewEntityError("Append", "run", run.ID, persistence.ErrRunAlreadyExists)
		}

		return "", fmt.Errorf("failed to append run %s: %w", run.ID, err)
	}

	return run.ID, nil
}

func (r *runRepository) ListForRule(_ context.Context, ruleID string) ([]*models.Run, error) {
	return r.list(func(run *models.Run) bool { return run.RuleID == ruleID })
}

func (r *runRepository) ListForInstance(_ context.Context, instanceID string) ([]*models.Run, error) {
	return r.list(func(run *models.Run) bool { return run.ActionInstanceID == instanceID })
}

func (r *runRepository) list(keep func(*models.Run) bool) ([]*models.Run, error) {
	runs, err := r.fp.runs.list(keep)
	if err != nil {
		return nil, err
	}

	ledger.SortRuns(runs)

	return runs, nil
}
