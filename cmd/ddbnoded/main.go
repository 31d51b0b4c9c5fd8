// Command ddbnoded starts a single cluster node: it loads the static
// cluster configuration, opens the local SQLite store, binds the TCP
// listener, and runs until signalled to stop.
package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/config"
	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/node"
	"github.com/distributeddb/core/pkg/ddb/storage"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app        = kingpin.New("ddbnoded", "Distributed relational database middleware node")
	configPath = app.Flag("config", "Path to the cluster configuration JSON file").Required().String()
	nodeID     = app.Flag("node-id", "This process's node_id within the configured cluster").Required().Int()
	debug      = app.Flag("debug", "Enable debug-level logging").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logging.NewLogrusLogger("ddbnoded")
	log.ToggleDebug(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	self, ok := cfg.Node(*nodeID)
	if !ok {
		log.Fatalf("node_id %d not present in %s", *nodeID, *configPath)
	}

	var descriptors []cluster.Descriptor
	for _, n := range cfg.Nodes {
		descriptors = append(descriptors, cluster.Descriptor{
			ID:     n.NodeID,
			Host:   n.Network.Host,
			Port:   n.Network.Port,
			Status: cluster.StatusActive,
		})
	}
	registry := cluster.NewRegistry(*nodeID, descriptors)

	adapter := storage.NewSQLiteAdapter(storage.Config{
		Host:     self.Database.Host,
		User:     self.Database.User,
		Password: self.Database.Password,
		Database: self.Database.Database,
		Port:     self.Database.Port,
	})

	orchestrator := node.New(*nodeID, registry, adapter, log, invoker.New())

	addr := self.Network.Host + ":" + strconv.Itoa(self.Network.Port)
	if err := orchestrator.Start(addr); err != nil {
		log.Fatalf("start node %d: %v", *nodeID, err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if err := orchestrator.Stop(); err != nil {
		log.Errorf("stop node %d: %v", *nodeID, err)
	}
}
