// Package workflowfile imports a community's stages, action instances and rules
// from a YAML document.
//
//	community: community-1
//	stages:
//	  - id: submitted
//	    name: Submitted
//	action_instances:
//	  - id: announce
//	    kind: log
//	    config: {message: "{{ .pub_id }} arrived"}
//	rules:
//	  - id: announce-on-submit
//	    stage: submitted
//	    event: pub-entered-stage
//	    action_instance: announce
//
// Entities are addressed by their ids, so importing the same file twice updates
// instead of duplicating. Rules run in the order they are listed.
package workflowfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type File struct {
	Community       string           `yaml:"community"        validate:"required"`
	Stages          []Stage          `yaml:"stages"           validate:"dive"`
	ActionInstances []ActionInstance `yaml:"action_instances" validate:"dive"`
	Rules           []Rule           `yaml:"rules"            validate:"dive"`
}

type Stage struct {
	ID    string `yaml:"id"    validate:"required"`
	Name  string `yaml:"name"  validate:"required"`
	Order int    `yaml:"order"`
}

type ActionInstance struct {
	ID     string         `yaml:"id"     validate:"required"`
	Kind   string         `yaml:"kind"   validate:"required"`
	Name   string         `yaml:"name"`
	Config map[string]any `yaml:"config"`
}

type Rule struct {
	ID             string           `yaml:"id"              validate:"required"`
	Stage          string           `yaml:"stage"           validate:"required"`
	Event          models.EventKind `yaml:"event"           validate:"required"`
	ActionInstance string           `yaml:"action_instance" validate:"required"`
	Config         map[string]any   `yaml:"config"`
}

// Result counts the entities written by an import.
type Result struct {
	Stages          int `json:"stages"`
	ActionInstances int `json:"action_instances"`
	Rules           int `json:"rules"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes and validates a workflow document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file File
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("workflow file is empty")
		}

		return nil, fmt.Errorf("parse workflow file: %w", err)
	}

	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid workflow file: %w", err)
	}

	if err := file.checkReferences(); err != nil {
		return nil, err
	}

	return &file, nil
}

// Load reads and parses the workflow document at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file %s: %w", path, err)
	}

	return Parse(bytes.NewReader(data))
}

func (f *File) checkReferences() error {
	stages := make(map[string]bool, len(f.Stages))
	for _, stage := range f.Stages {
		if stages[stage.ID] {
			return fmt.Errorf("duplicate stage id %q", stage.ID)
		}

		stages[stage.ID] = true
	}

	instances := make(map[string]bool, len(f.ActionInstances))
	for _, instance := range f.ActionInstances {
		if instances[instance.ID] {
			return fmt.Errorf("duplicate action instance id %q", instance.ID)
		}

		instances[instance.ID] = true
	}

	rules := make(map[string]bool, len(f.Rules))
	for _, rule := range f.Rules {
		if rules[rule.ID] {
			return fmt.Errorf("duplicate rule id %q", rule.ID)
		}

		rules[rule.ID] = true

		if !stages[rule.Stage] {
			return fmt.Errorf("rule %q references unknown stage %q", rule.ID, rule.Stage)
		}

		if !instances[rule.ActionInstance] {
			return fmt.Errorf("rule %q references unknown action instance %q", rule.ID, rule.ActionInstance)
		}
	}

	return nil
}

// Importer writes parsed documents through the authoring services so every
// entity passes the same checks as the API.
type Importer struct {
	stages    *services.Stage
	instances *services.ActionInstance
	rules     *services.Rule
	now       func() time.Time
}

func NewImporter(stages *services.Stage, instances *services.ActionInstance, rules *services.Rule) *Importer {
	return &Importer{
		stages:    stages,
		instances: instances,
		rules:     rules,
		now:       time.Now,
	}
}

// Import upserts stages, then action instances, then rules. It stops at the
// first entity that fails validation.
func (i *Importer) Import(ctx context.Context, file *File) (Result, error) {
	var result Result

	for _, stage := range file.Stages {
		err := i.stages.Put(ctx, &models.Stage{
			ID:          stage.ID,
			CommunityID: file.Community,
			Name:        stage.Name,
			Order:       stage.Order,
		})
		if err != nil {
			return result, fmt.Errorf("stage %q: %w", stage.ID, err)
		}

		result.Stages++
	}

	for _, instance := range file.ActionInstances {
		err := i.instances.Put(ctx, &models.ActionInstance{
			ID:          instance.ID,
			CommunityID: file.Community,
			Kind:        instance.Kind,
			Name:        instance.Name,
			Config:      instance.Config,
		})
		if err != nil {
			return result, fmt.Errorf("action instance %q: %w", instance.ID, err)
		}

		result.ActionInstances++
	}

	base := i.now().UTC()

	for n, rule := range file.Rules {
		err := i.rules.Put(ctx, &models.Rule{
			ID:               rule.ID,
			StageID:          rule.Stage,
			Event:            rule.Event,
			ActionInstanceID: rule.ActionInstance,
			Config:           rule.Config,
			CreatedAt:        base.Add(time.Duration(n) * time.Millisecond),
		})
		if err != nil {
			return result, fmt.Errorf("rule %q: %w", rule.ID, err)
		}

		result.Rules++
	}

	return result, nil
}
