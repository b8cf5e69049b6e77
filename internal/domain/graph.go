// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// NodeType identifies the kind of node in the relationship graph.
type NodeType string

const (
	NodeCustomer  NodeType = "customer"
	NodeCommunity NodeType = "community"
)

// Node is a vertex in the customer relationship graph.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`

	// Numeric attributes, e.g. "riskScore". A riskScore >= HighRiskThreshold
	// marks the customer as high-risk for community statistics.
	Attributes map[string]float64 `json:"attributes,omitempty"`
}

// HighRiskThreshold is the riskScore above which a customer counts as
// high-risk in community risk ratios and propagation features.
const HighRiskThreshold = 0.7

// Edge is a weighted, typed relationship between two nodes.
// Relationship edges are treated as undirected by the analytics.
type Edge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	RelationType string  `json:"relationType"`
	Weight       float64 `json:"weight"`
}

// CommunityAssignment maps every node to exactly one community.
// Community ids are stable only within a single detection run.
type CommunityAssignment map[string]string

// CommunityStats holds aggregate statistics for one community.
type CommunityStats struct {
	CommunityID string  `json:"communityId"`
	Size        int     `json:"size"`
	EdgeCount   int     `json:"edgeCount"`
	Density     float64 `json:"density"`
	RiskRatio   float64 `json:"riskRatio"`
}

// MembershipSnapshot records a community's size at a point in time,
// used for temporal features.
type MembershipSnapshot struct {
	CommunityID string    `json:"communityId"`
	Size        int       `json:"size"`
	TakenAt     time.Time `json:"takenAt"`
}

// GraphStore is the query surface over the relationship graph consumed by
// the pruner, the community detector and the feature extractor.
// Implementations must be safe for concurrent readers.
type GraphStore interface {
	// Node and edge access
	GetNode(ctx context.Context, id string) (*Node, error)
	Nodes(ctx context.Context) ([]*Node, error)
	Edges(ctx context.Context) ([]*Edge, error)
	Neighbors(ctx context.Context, id string) ([]*Node, error)

	// Community membership and aggregates
	CommunityOf(ctx context.Context, id string) (string, error)
	CommunityStats(ctx context.Context, communityID string) (*CommunityStats, error)
	SetCommunities(ctx context.Context, assignment CommunityAssignment) error

	// Centrality values per node
	DegreeCentrality(ctx context.Context, id string) (float64, error)
	BetweennessCentrality(ctx context.Context, id string) (float64, error)
	ClosenessCentrality(ctx context.Context, id string) (float64, error)

	// Historical snapshots for temporal features
	MembershipHistory(ctx context.Context, communityID string) ([]MembershipSnapshot, error)

	// Recent activity rate for a customer (interactions per day)
	ActivityRate(ctx context.Context, id string, window time.Duration) (float64, error)
}
