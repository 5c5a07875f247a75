package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/graphd/pkg/config"
	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/index"
	"github.com/cuemby/graphd/pkg/kvstore"
	"github.com/cuemby/graphd/pkg/lock"
	"github.com/cuemby/graphd/pkg/log"
	"github.com/cuemby/graphd/pkg/mvcc"
	"github.com/cuemby/graphd/pkg/storage"
	"github.com/cuemby/graphd/pkg/traverse"
	"github.com/cuemby/graphd/pkg/txn"
	"github.com/cuemby/graphd/pkg/value"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "graphd",
	Short: "graphd - embedded property-graph storage and execution engine",
	Long: `graphd is the storage and execution core of a property-graph database:
typed vertices with multiple tags, directed typed ranked edges, snapshot
isolated transactions, secondary indexes and graph traversal, all over an
embedded ordered store.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"graphd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringSlice("log-component-levels", nil,
		"Per-component level overrides, e.g. mvcc=debug,traverse=warn")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Data directory for the embedded store")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	cobra.OnInitialize(initLogging)

	indexCmd.AddCommand(indexCreateCmd)
	indexCmd.AddCommand(indexDropCmd)
	indexCmd.AddCommand(indexLookupCmd)

	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(indexCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	overrides, _ := rootCmd.PersistentFlags().GetStringSlice("log-component-levels")

	componentLevels := make(map[string]log.Level, len(overrides))
	for _, o := range overrides {
		if component, level, ok := strings.Cut(o, "="); ok {
			componentLevels[component] = log.Level(level)
		}
	}

	log.Init(log.Config{
		Level:           log.Level(logLevel),
		JSONOutput:      logJSON,
		ComponentLevels: componentLevels,
	})
}

// engineStack bundles everything a command needs to drive the core.
type engineStack struct {
	cfg     *config.Config
	store   *kvstore.Store
	engine  *storage.Engine
	mvccMgr *mvcc.Manager
	coord   *txn.Coordinator
	catalog *index.Catalog
	updater *index.Updater
}

func openStack(cmd *cobra.Command) (*engineStack, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := kvstore.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	mvccMgr := mvcc.NewManager(mvcc.GcConfig{
		MinVersions:       cfg.MVCC.MinVersions,
		RetentionDuration: cfg.MVCC.RetentionDuration,
		GCInterval:        cfg.MVCC.GCInterval,
	})
	lockMgr := lock.NewManager(lock.Config{
		DefaultTimeout:          cfg.Lock.DefaultTimeout,
		DeadlockCheckInterval:   cfg.Lock.DeadlockCheckInterval,
		EnableDeadlockDetection: cfg.Lock.EnableDeadlockDetection,
		MaxWaitQueueLength:      cfg.Lock.MaxWaitQueueLength,
	})

	engine := storage.New(store)
	catalog := index.NewCatalog(store)
	updater := index.NewUpdater(catalog, index.NewStorage())
	if cfg.Index.CacheEnabled {
		updater.SetCache(index.NewCache(index.CacheConfig{
			TTL:        cfg.Index.CacheTTL,
			MaxEntries: cfg.Index.CacheMaxEntries,
		}))
	}

	// Rebuild the in-memory index postings from the durable index_data
	// table before anything serves lookups.
	if err := updater.Restore(); err != nil {
		store.Close()
		return nil, err
	}

	coord := txn.NewCoordinator(txn.Config{
		LockTimeout: cfg.Lock.DefaultTimeout,
		TxTimeout:   time.Minute,
	}, engine, mvccMgr, lockMgr, catalog, updater)

	return &engineStack{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		mvccMgr: mvccMgr,
		coord:   coord,
		catalog: catalog,
		updater: updater,
	}, nil
}

func (s *engineStack) close() {
	s.mvccMgr.Close()
	_ = s.store.Close()
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load a synthetic graph and time traversals against it",
	RunE: func(cmd *cobra.Command, args []string) error {
		vertices, _ := cmd.Flags().GetInt("vertices")
		fanout, _ := cmd.Flags().GetInt("fanout")

		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.close()

		const space = uint32(1)
		loadStart := time.Now()
		tx := stack.coord.Begin()
		for i := 0; i < vertices; i++ {
			v := &graph.Vertex{
				VID: graph.VID(fmt.Sprintf("v%d", i)),
				Tags: []graph.Tag{{
					Name:       "node",
					Properties: map[string]any{"seq": int64(i)},
				}},
			}
			if err := tx.UpsertVertex(space, v); err != nil {
				return err
			}
			for f := 1; f <= fanout; f++ {
				dst := (i + f) % vertices
				e := &graph.Edge{EdgeKey: graph.EdgeKey{
					Src:      graph.VID(fmt.Sprintf("v%d", i)),
					Dst:      graph.VID(fmt.Sprintf("v%d", dst)),
					EdgeType: "LINK",
				}}
				if err := tx.UpsertEdge(space, e); err != nil {
					return err
				}
			}
		}
		if err := stack.coord.Commit(tx); err != nil {
			return err
		}
		fmt.Printf("Loaded %d vertices, %d edges in %s\n",
			vertices, vertices*fanout, time.Since(loadStart))

		travStart := time.Now()
		ex := traverse.NewAllPathsExecutor(1, stack.engine, traverse.Options{
			SpaceID:       space,
			LeftStartIDs:  []graph.VID{"v0"},
			RightStartIDs: []graph.VID{graph.VID(fmt.Sprintf("v%d", vertices/2))},
			Direction:     graph.DirOutgoing,
			MaxSteps:      stack.cfg.BFS.DefaultMaxSteps,
			Limit:         stack.cfg.BFS.DefaultLimit,
		})
		res, err := ex.Execute(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("AllPaths found %d paths in %s\n", len(res.Paths), time.Since(travStart))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a summary of the graph stored in a data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		space, _ := cmd.Flags().GetUint32("space")

		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.close()

		vertices, err := stack.engine.ScanAllVertices(space)
		if err != nil {
			return err
		}
		edges, err := stack.engine.ScanAllEdges(space)
		if err != nil {
			return err
		}
		defs, err := stack.catalog.List(space)
		if err != nil {
			return err
		}

		fmt.Printf("Space %d\n", space)
		fmt.Printf("  Vertices: %d\n", len(vertices))
		fmt.Printf("  Edges:    %d\n", len(edges))
		fmt.Printf("  Indexes:  %d\n", len(defs))
		for _, d := range defs {
			fmt.Printf("    %-24s %-6s on %s(%v) [%s]\n",
				d.Name, d.Kind, d.Owner, d.Fields, d.Status)
		}
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create, drop and query secondary indexes",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a secondary index and backfill it from existing records",
	RunE: func(cmd *cobra.Command, args []string) error {
		space, _ := cmd.Flags().GetUint32("space")
		name, _ := cmd.Flags().GetString("name")
		kindStr, _ := cmd.Flags().GetString("kind")
		owner, _ := cmd.Flags().GetString("owner")
		fields, _ := cmd.Flags().GetStringSlice("fields")

		var kind index.Kind
		switch kindStr {
		case "vertex":
			kind = index.KindVertex
		case "edge":
			kind = index.KindEdge
		default:
			return fmt.Errorf("unknown index kind %q (want vertex or edge)", kindStr)
		}

		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.close()

		def, err := stack.coord.CreateIndex(space, name, kind, owner, fields)
		if err != nil {
			return err
		}
		fmt.Printf("Created index %s (#%d) on %s(%v) [%s]\n",
			def.Name, def.Seq, def.Owner, def.Fields, def.Status)
		return nil
	},
}

var indexDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop a secondary index and purge its postings",
	RunE: func(cmd *cobra.Command, args []string) error {
		space, _ := cmd.Flags().GetUint32("space")
		name, _ := cmd.Flags().GetString("name")

		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.close()

		if err := stack.coord.DropIndex(space, name); err != nil {
			return err
		}
		fmt.Printf("Dropped index %s\n", name)
		return nil
	},
}

var indexLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Exact-match lookup against a secondary index",
	RunE: func(cmd *cobra.Command, args []string) error {
		space, _ := cmd.Flags().GetUint32("space")
		name, _ := cmd.Flags().GetString("name")
		field, _ := cmd.Flags().GetString("field")
		raw, _ := cmd.Flags().GetString("value")

		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.close()

		hits, err := stack.coord.LookupExact(space, name, field, value.String(raw))
		if err != nil {
			return err
		}
		fmt.Printf("%d record(s)\n", len(hits))
		for _, h := range hits {
			fmt.Printf("  %s\n", h)
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().Int("vertices", 1000, "Number of vertices to load")
	benchCmd.Flags().Int("fanout", 3, "Outgoing edges per vertex")
	inspectCmd.Flags().Uint32("space", 1, "Space id to inspect")

	for _, cmd := range []*cobra.Command{indexCreateCmd, indexDropCmd, indexLookupCmd} {
		cmd.Flags().Uint32("space", 1, "Space id the index belongs to")
		cmd.Flags().String("name", "", "Index name")
	}
	indexCreateCmd.Flags().String("kind", "vertex", "Index kind (vertex or edge)")
	indexCreateCmd.Flags().String("owner", "", "Owning tag or edge type")
	indexCreateCmd.Flags().StringSlice("fields", nil, "Indexed property names")
	indexLookupCmd.Flags().String("field", "", "Indexed field to match")
	indexLookupCmd.Flags().String("value", "", "String value to match exactly")
}
