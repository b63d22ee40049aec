// Package registry provides the process-wide catalog of action kinds.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
)

var (
	// ErrUnknownActionKind indicates no factory is registered for an action kind.
	ErrUnknownActionKind = errors.New("unknown action kind")

	// ErrDuplicateActionKind indicates a kind was registered twice.
	ErrDuplicateActionKind = errors.New("action kind already registered")

	// ErrRegistrySealed indicates registration after the registry was sealed.
	ErrRegistrySealed = errors.New("action registry is sealed")
)

// Registry maps action kinds to their factories. Registration happens at
// process start; after Seal the registry is read-only and safe for concurrent use.
type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	sealed          bool
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log.With("module", "registry"),
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

// RegisterAction adds a factory under its ID.
func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, actionFactory.ID())
	}

	if _, exists := r.actionFactories[actionFactory.ID()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateActionKind, actionFactory.ID())
	}

	r.actionFactories[actionFactory.ID()] = actionFactory
	r.logger.Debug("Registered action kind", "kind", actionFactory.ID())

	return nil
}

// Seal freezes the registry. Sealing twice is harmless.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sealed
}

// Lookup returns the factory for kind or ErrUnknownActionKind.
func (r *Registry) Lookup(kind string) (protocol.ActionFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.actionFactories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionKind, kind)
	}

	return factory, nil
}

// Schema returns the config schema declared by kind.
func (r *Registry) Schema(kind string) (map[string]any, error) {
	factory, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}

	return factory.Schema(), nil
}

// Timeout returns the per-kind timeout, or fallback when the kind declares none.
func (r *Registry) Timeout(kind string, fallback time.Duration) time.Duration {
	factory, err := r.Lookup(kind)
	if err != nil {
		return fallback
	}

	if provider, ok := factory.(protocol.TimeoutProvider); ok && provider.Timeout() > 0 {
		return provider.Timeout()
	}

	return fallback
}

// ActionKinds returns the catalog sorted by kind.
func (r *Registry) ActionKinds() []models.ActionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.ActionKind, 0, len(r.actionFactories))
	for _, factory := range r.actionFactories {
		kinds = append(kinds, models.ActionKind{
			Kind:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i].Kind < kinds[j].Kind
	})

	return kinds
}

// LoadActionPlugins opens every shared object under <pluginsPath>/actions and
// returns the exported Action symbols.
func (r *Registry) LoadActionPlugins(pluginsPath string) ([]protocol.ActionFactory, error) {
	return loadPlugin[protocol.ActionFactory](r.logger, pluginsPath, "Action")
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			if ptr, isPtr := v.(*T); isPtr {
				castV = *ptr
			} else {
				return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
			}
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded action plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
