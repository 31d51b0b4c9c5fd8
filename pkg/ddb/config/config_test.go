package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesValidConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.json")
	body := `{
		"nodes": [
			{"node_id": 1, "network": {"host": "127.0.0.1", "port": 9001}, "database": {"database": "node1.db"}},
			{"node_id": 2, "network": {"host": "127.0.0.1", "port": 9002}, "database": {"database": "node2.db"}}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cluster, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cluster.Nodes, 2)

	n, ok := cluster.Node(2)
	require.True(t, ok)
	require.Equal(t, "127.0.0.1", n.Network.Host)
	require.Equal(t, 9002, n.Network.Port)
	require.Equal(t, "node2.db", n.Database.Database)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestNewClusterRejectsDuplicateNodeID(t *testing.T) {
	_, err := NewCluster([]NodeConfig{
		{NodeID: 1, Network: Network{Host: "h", Port: 1}, Database: Database{Database: "d"}},
		{NodeID: 1, Network: Network{Host: "h", Port: 2}, Database: Database{Database: "d"}},
	})
	require.Error(t, err)
}

func TestNewClusterRejectsEmptyHost(t *testing.T) {
	_, err := NewCluster([]NodeConfig{
		{NodeID: 1, Network: Network{Host: "", Port: 1}, Database: Database{Database: "d"}},
	})
	require.Error(t, err)
}

func TestNewClusterRejectsEmptyDatabase(t *testing.T) {
	_, err := NewCluster([]NodeConfig{
		{NodeID: 1, Network: Network{Host: "h", Port: 1}, Database: Database{Database: ""}},
	})
	require.Error(t, err)
}

func TestNewClusterRejectsEmptyNodeList(t *testing.T) {
	_, err := NewCluster(nil)
	require.Error(t, err)
}

func TestNodeReturnsFalseForUnknownID(t *testing.T) {
	cluster, err := NewCluster([]NodeConfig{
		{NodeID: 1, Network: Network{Host: "h", Port: 1}, Database: Database{Database: "d"}},
	})
	require.NoError(t, err)

	_, ok := cluster.Node(99)
	require.False(t, ok)
}
