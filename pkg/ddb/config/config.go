// Package config loads and validates the static cluster configuration: a
// JSON file naming every node's identifier, network endpoint, and local
// database connection. It is loaded once at startup and never reloaded.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Network is a node's TCP listen endpoint.
type Network struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Database names the node's local relational store. Host/User/Password/
// Port are accepted for compatibility with a networked backend even
// though the current storage.SQLiteAdapter only consumes Database.
type Database struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	Port     int    `json:"port,omitempty"`
}

// NodeConfig is a single entry in the top-level "nodes" array.
type NodeConfig struct {
	NodeID   int      `json:"node_id"`
	Network  Network  `json:"network"`
	Database Database `json:"database"`
}

// Cluster is the fully parsed, validated configuration for every node in
// the static cluster.
type Cluster struct {
	Nodes []NodeConfig `json:"nodes"`
}

// NewCluster validates nodes the same way the teacher's NewPeer validates
// a PeerConfiguration before constructing a Peer: reject anything
// malformed up front, as a constructor-time error, rather than letting a
// bad config surface as a confusing runtime failure later.
func NewCluster(nodes []NodeConfig) (*Cluster, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("config: nodes list is empty")
	}

	seen := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		if n.NodeID <= 0 {
			return nil, fmt.Errorf("config: node_id must be positive, got %d", n.NodeID)
		}
		if seen[n.NodeID] {
			return nil, fmt.Errorf("config: duplicate node_id %d", n.NodeID)
		}
		seen[n.NodeID] = true

		if n.Network.Host == "" {
			return nil, fmt.Errorf("config: node %d: network.host is empty", n.NodeID)
		}
		if n.Network.Port <= 0 {
			return nil, fmt.Errorf("config: node %d: network.port must be positive, got %d", n.NodeID, n.Network.Port)
		}
		if n.Database.Database == "" {
			return nil, fmt.Errorf("config: node %d: database.database is empty", n.NodeID)
		}
	}

	return &Cluster{Nodes: nodes}, nil
}

// Load reads and validates the JSON configuration file at path.
func Load(path string) (*Cluster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed struct {
		Nodes []NodeConfig `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return NewCluster(parsed.Nodes)
}

// Node returns the entry for id, if present.
func (c *Cluster) Node(id int) (NodeConfig, bool) {
	for _, n := range c.Nodes {
		if n.NodeID == id {
			return n, true
		}
	}
	return NodeConfig{}, false
}
