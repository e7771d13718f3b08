package memory

import (
	"context"
	"sync"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/repository"
)

var _ repository.NodeRegistry = (*NodeRegistry)(nil)

// NodeRegistry stores nodes in a map plus an insertion-ordered id slice.
// Entries are never removed.
type NodeRegistry struct {
	mu    sync.RWMutex
	nodes map[string]*model.Node
	order []string
}

func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{nodes: make(map[string]*model.Node)}
}

func (r *NodeRegistry) Add(ctx context.Context, node *model.Node) error {
	if node == nil || node.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[node.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *node
	r.nodes[node.ID] = &cp
	r.order = append(r.order, node.ID)
	return nil
}

func (r *NodeRegistry) FindByID(ctx context.Context, id string) (*model.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *NodeRegistry) List(ctx context.Context) ([]*model.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Node, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.nodes[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *NodeRegistry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order), nil
}
