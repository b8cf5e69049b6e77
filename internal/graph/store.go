package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Store is an in-process implementation of domain.GraphStore. Reads are
// safe under unbounded parallelism; writes take the exclusive lock.
type Store struct {
	mu sync.RWMutex

	nodes map[string]*domain.Node
	edges map[[2]string]*domain.Edge
	g     *Graph

	communities domain.CommunityAssignment
	history     map[string][]domain.MembershipSnapshot
	activity    map[string][]time.Time

	// Betweenness is cached per structural version; any edge or node
	// mutation invalidates it.
	version     uint64
	bcVersion   uint64
	betweenness map[string]float64

	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		nodes:       make(map[string]*domain.Node),
		edges:       make(map[[2]string]*domain.Edge),
		g:           New(),
		communities: make(domain.CommunityAssignment),
		history:     make(map[string][]domain.MembershipSnapshot),
		activity:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// UpsertNode adds or replaces a node.
func (s *Store) UpsertNode(node *domain.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = node
	s.g.AddNode(node.ID)
	s.version++
}

// UpsertEdge adds an edge, creating missing endpoint nodes as customers.
func (s *Store) UpsertEdge(edge *domain.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{edge.Source, edge.Target} {
		if _, ok := s.nodes[id]; !ok {
			s.nodes[id] = &domain.Node{ID: id, Type: domain.NodeCustomer}
		}
	}
	s.edges[edgeKeyPair(edge.Source, edge.Target)] = edge
	s.g.AddEdge(edge.Source, edge.Target, edge.Weight)
	s.version++
}

// RecordActivity logs one customer interaction at the given time.
func (s *Store) RecordActivity(customerID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[customerID] = append(s.activity[customerID], at)
}

// Snapshot returns a copy of the adjacency structure for the analytics.
// Mutating the snapshot does not affect the store.
func (s *Store) Snapshot() *Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := New()
	for id := range s.nodes {
		out.AddNode(id)
	}
	for _, e := range s.edges {
		out.AddEdge(e.Source, e.Target, e.Weight)
	}
	return out
}

// GetNode returns a node or ErrUnknownEntity.
func (s *Store) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %q", domain.ErrUnknownEntity, id)
	}
	return node, nil
}

// Nodes returns all nodes ordered by id.
func (s *Store) Nodes(ctx context.Context) ([]*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Edges returns all edges ordered by (source, target).
func (s *Store) Edges(ctx context.Context) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

// Neighbors returns the adjacent nodes of id, or ErrUnknownEntity.
func (s *Store) Neighbors(ctx context.Context, id string) ([]*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: node %q", domain.ErrUnknownEntity, id)
	}
	ids := s.g.Neighbors(id)
	out := make([]*domain.Node, 0, len(ids))
	for _, nid := range ids {
		if n, ok := s.nodes[nid]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// CommunityOf returns the community id assigned to a node.
func (s *Store) CommunityOf(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return "", fmt.Errorf("%w: node %q", domain.ErrUnknownEntity, id)
	}
	cid, ok := s.communities[id]
	if !ok {
		// Without a detection run every node is its own community.
		return id, nil
	}
	return cid, nil
}

// SetCommunities replaces the current assignment and appends a
// membership snapshot per community for temporal features.
func (s *Store) SetCommunities(ctx context.Context, assignment domain.CommunityAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.communities = make(domain.CommunityAssignment, len(assignment))
	sizes := make(map[string]int)
	for node, community := range assignment {
		s.communities[node] = community
		sizes[community]++
	}

	at := s.now()
	for community, size := range sizes {
		s.history[community] = append(s.history[community], domain.MembershipSnapshot{
			CommunityID: community,
			Size:        size,
			TakenAt:     at,
		})
	}
	return nil
}

// CommunityStats returns aggregate statistics for one community.
func (s *Store) CommunityStats(ctx context.Context, communityID string) (*domain.CommunityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make(map[string]struct{})
	for node, community := range s.communities {
		if community == communityID {
			members[node] = struct{}{}
		}
	}
	if len(members) == 0 {
		// A node never assigned is its own singleton community.
		if _, ok := s.nodes[communityID]; ok {
			members[communityID] = struct{}{}
		} else {
			return nil, fmt.Errorf("%w: community %q", domain.ErrUnknownEntity, communityID)
		}
	}

	intraEdges := 0
	for key := range s.edges {
		_, aIn := members[key[0]]
		_, bIn := members[key[1]]
		if aIn && bIn {
			intraEdges++
		}
	}

	highRisk := 0
	for id := range members {
		if n, ok := s.nodes[id]; ok && n.Attributes["riskScore"] >= domain.HighRiskThreshold {
			highRisk++
		}
	}

	n := len(members)
	density := 0.0
	if n > 1 {
		density = 2.0 * float64(intraEdges) / (float64(n) * float64(n-1))
	}

	return &domain.CommunityStats{
		CommunityID: communityID,
		Size:        n,
		EdgeCount:   intraEdges,
		Density:     density,
		RiskRatio:   float64(highRisk) / float64(n),
	}, nil
}

// DegreeCentrality returns the normalized degree of a node.
func (s *Store) DegreeCentrality(ctx context.Context, id string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return 0, fmt.Errorf("%w: node %q", domain.ErrUnknownEntity, id)
	}
	return s.g.DegreeCentrality(id), nil
}

// BetweennessCentrality returns cached normalized betweenness for a node,
// recomputing when the graph structure changed.
func (s *Store) BetweennessCentrality(ctx context.Context, id string) (float64, error) {
	s.mu.RLock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.RUnlock()
		return 0, fmt.Errorf("%w: node %q", domain.ErrUnknownEntity, id)
	}
	if s.betweenness != nil && s.bcVersion == s.version {
		bc := s.betweenness[id]
		s.mu.RUnlock()
		return bc, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.betweenness == nil || s.bcVersion != s.version {
		s.betweenness = s.g.BetweennessCentrality()
		s.bcVersion = s.version
	}
	return s.betweenness[id], nil
}

// ClosenessCentrality returns normalized closeness for a node.
func (s *Store) ClosenessCentrality(ctx context.Context, id string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return 0, fmt.Errorf("%w: node %q", domain.ErrUnknownEntity, id)
	}
	return s.g.ClosenessCentrality(id), nil
}

// MembershipHistory returns the recorded size snapshots for a community,
// oldest first.
func (s *Store) MembershipHistory(ctx context.Context, communityID string) ([]domain.MembershipSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.history[communityID]
	out := make([]domain.MembershipSnapshot, len(history))
	copy(out, history)
	return out, nil
}

// ActivityRate returns interactions per day over the trailing window.
func (s *Store) ActivityRate(ctx context.Context, id string, window time.Duration) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return 0, fmt.Errorf("%w: node %q", domain.ErrUnknownEntity, id)
	}
	if window <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-window)
	count := 0
	for _, at := range s.activity[id] {
		if !at.Before(cutoff) {
			count++
		}
	}
	days := window.Hours() / 24
	if days <= 0 {
		return 0, nil
	}
	return float64(count) / days, nil
}
