package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Factory 智能体构造函数。
type Factory func(deps Deps, cfg Config) (Agent, error)

// Registry 智能体注册表。
// 内置类型在创建时注册，Register 允许覆盖或扩展。
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
	logger    *zap.Logger
}

// NewRegistry 创建带全部内置工厂的注册表。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		factories: make(map[Type]Factory),
		logger:    logger.With(zap.String("component", "agent_registry")),
	}
	r.Register(TypeChat, func(deps Deps, cfg Config) (Agent, error) {
		return NewChatAgent(deps, cfg)
	})
	r.Register(TypeGraphQuery, func(deps Deps, cfg Config) (Agent, error) {
		return NewGraphQueryAgent(deps, cfg)
	})
	r.Register(TypeRetrieval, func(deps Deps, cfg Config) (Agent, error) {
		return NewRetrievalAgent(deps, cfg)
	})
	return r
}

// Register 注册或覆盖工厂。
func (r *Registry) Register(t Type, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[t]; exists {
		r.logger.Warn("agent factory overridden", zap.String("agent_type", string(t)))
	}
	r.factories[t] = factory
}

// Create 创建指定类型的智能体。
// 未注册的类型返回错误并列出全部可用类型。
func (r *Registry) Create(t Type, deps Deps, cfg Config) (Agent, error) {
	r.mu.RLock()
	factory, ok := r.factories[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid types: %s)", ErrTypeNotRegistered, t, strings.Join(r.typeNames(), ", "))
	}
	agent, err := factory(deps, cfg)
	if err != nil {
		return nil, fmt.Errorf("create agent %q: %w", t, err)
	}
	return agent, nil
}

// Types 返回已注册类型，按名称排序。
func (r *Registry) Types() []Type {
	names := r.typeNames()
	out := make([]Type, 0, len(names))
	for _, n := range names {
		out = append(out, Type(n))
	}
	return out
}

func (r *Registry) typeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for t := range r.factories {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}
