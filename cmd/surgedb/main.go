// Command surgedb is the in-process CLI for surgedb: it links the
// library directly and drives it through pkg/engine rather than talking
// to any server, matching spec.md §1's framing of the HTTP collaborator
// as an external, out-of-scope concern.
//
// Grounded on the teacher's cmd/sqvect/main.go cobra command tree (init/
// embed/search/collection/stats), generalized from a single SQLite
// database file to a directory of collections managed by pkg/engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/surgedb/surgedb/pkg/collection"
	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/engine"
	"github.com/surgedb/surgedb/pkg/metadata"
)

var (
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "surgedb",
	Short: "Embedded HNSW vector database CLI",
	Long:  "A command-line interface for creating collections and running inserts and searches against a surgedb data directory.",
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func openEngine() (*engine.Engine, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory not specified (use --dir)")
	}
	return engine.Open(engine.Options{Dir: dataDir, Logger: newLogger()})
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		dim, _ := cmd.Flags().GetInt("dim")
		metricStr, _ := cmd.Flags().GetString("metric")
		quantStr, _ := cmd.Flags().GetString("quantization")
		keepOriginals, _ := cmd.Flags().GetBool("keep-originals")
		syncWrites, _ := cmd.Flags().GetBool("sync-writes")

		if dim <= 0 {
			return fmt.Errorf("--dim must be positive")
		}
		metric, ok := distance.ParseMetric(metricStr)
		if !ok {
			return fmt.Errorf("unknown metric %q", metricStr)
		}

		cfg := config.DefaultConfig(dim, metric)
		cfg.SyncWrites = syncWrites
		cfg.KeepOriginals = keepOriginals
		switch quantStr {
		case "", "none":
			cfg.Quantization = config.None
		case "sq8":
			cfg.Quantization = config.SQ8
		case "binary":
			cfg.Quantization = config.Binary
		default:
			return fmt.Errorf("unknown quantization %q", quantStr)
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		h, err := e.Create(name, cfg)
		if err != nil {
			return err
		}
		defer h.Release()

		fmt.Printf("collection %q created: dim=%d metric=%s quantization=%s\n", name, dim, metric, quantStr)
		return nil
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert <collection> <id>",
	Short: "Insert or overwrite a vector",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, id := args[0], args[1]
		vectorStr, _ := cmd.Flags().GetString("vector")
		metaStr, _ := cmd.Flags().GetString("metadata")
		upsert, _ := cmd.Flags().GetBool("upsert")

		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}
		vec, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		var meta metadata.Doc
		if metaStr != "" {
			if err := json.Unmarshal([]byte(metaStr), &meta); err != nil {
				return fmt.Errorf("invalid --metadata JSON: %w", err)
			}
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		h, err := e.Collection(name)
		if err != nil {
			return err
		}
		defer h.Release()

		if upsert {
			err = h.Upsert(id, vec, meta)
		} else {
			err = h.Insert(id, vec, meta)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%q inserted into %q\n", id, name)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <id>",
	Short: "Delete a vector by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, id := args[0], args[1]
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		h, err := e.Collection(name)
		if err != nil {
			return err
		}
		defer h.Release()

		ok, err := h.Delete(id)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%q not found in %q\n", id, name)
			return nil
		}
		fmt.Printf("%q deleted from %q\n", id, name)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <collection>",
	Short: "Search for the k nearest vectors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("k")
		exact, _ := cmd.Flags().GetBool("exact")
		outputJSON, _ := cmd.Flags().GetBool("json")

		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}
		vec, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		h, err := e.Collection(name)
		if err != nil {
			return err
		}
		defer h.Release()

		var results []collection.SearchResult
		if exact {
			results, err = h.SearchExact(vec, k, nil)
		} else {
			results, err = h.Search(vec, k, nil)
		}
		if err != nil {
			return err
		}

		if outputJSON {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		for i, r := range results {
			fmt.Printf("%d. %s (distance=%.6f)\n", i+1, r.ExternalId, r.Distance)
		}
		return nil
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <collection>",
	Short: "Force a snapshot checkpoint and rotate the WAL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		h, err := e.Collection(name)
		if err != nil {
			return err
		}
		defer h.Release()

		if err := h.Checkpoint(); err != nil {
			return err
		}
		fmt.Printf("collection %q checkpointed\n", name)
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <collection>",
	Short: "Re-insert every live vector into a fresh graph, discarding tombstones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		force, _ := cmd.Flags().GetBool("force")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		h, err := e.Collection(name)
		if err != nil {
			return err
		}
		defer h.Release()

		if !force && !h.NeedsRebuild() {
			fmt.Printf("collection %q is below the rebuild threshold; use --force to rebuild anyway\n", name)
			return nil
		}
		if err := h.Rebuild(context.Background()); err != nil {
			return err
		}
		fmt.Printf("collection %q rebuilt\n", name)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		for _, name := range e.Collections() {
			fmt.Println(name)
		}
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <collection>",
	Short: "Drop a collection and delete its data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Drop(name); err != nil {
			return err
		}
		fmt.Printf("collection %q dropped\n", name)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <collection>",
	Short: "Display collection statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		h, err := e.Collection(name)
		if err != nil {
			return err
		}
		defer h.Release()

		cfg := h.Config()
		fmt.Printf("collection: %s\n", name)
		fmt.Printf("  vectors: %d\n", h.Len())
		fmt.Printf("  dimensions: %d\n", h.Dim())
		fmt.Printf("  metric: %s\n", cfg.Metric)

		if q, m, o, ok := h.Footprint(); ok {
			total := q + m + o
			raw := int64(h.Len()) * int64(h.Dim()) * 4
			fmt.Printf("  quantized bytes: %s\n", humanize.Bytes(uint64(q)))
			if m > 0 {
				fmt.Printf("  codec metadata bytes: %s\n", humanize.Bytes(uint64(m)))
			}
			if o > 0 {
				fmt.Printf("  kept-original bytes: %s\n", humanize.Bytes(uint64(o)))
			}
			if raw > 0 {
				fmt.Printf("  compression ratio vs raw f32: %.2fx\n", float64(raw)/float64(total))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "dir", "d", "", "surgedb data directory (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable development logging")

	createCmd.Flags().Int("dim", 0, "vector dimension (required)")
	createCmd.Flags().String("metric", "cosine", "distance metric: cosine, euclidean, dot_product")
	createCmd.Flags().String("quantization", "none", "quantization mode: none, sq8, binary")
	createCmd.Flags().Bool("keep-originals", false, "retain unquantized vectors for reranking")
	createCmd.Flags().Bool("sync-writes", false, "fsync every WAL append")

	insertCmd.Flags().String("vector", "", "comma-separated vector components (required)")
	insertCmd.Flags().String("metadata", "", "metadata as a JSON object")
	insertCmd.Flags().Bool("upsert", false, "replace the vector if the id already exists")
	insertCmd.MarkFlagRequired("vector")

	searchCmd.Flags().String("vector", "", "comma-separated query vector (required)")
	searchCmd.Flags().Int("k", 10, "number of results")
	searchCmd.Flags().Bool("exact", false, "use the brute-force oracle instead of the HNSW index")
	searchCmd.Flags().Bool("json", false, "output as JSON")
	searchCmd.MarkFlagRequired("vector")

	rebuildCmd.Flags().Bool("force", false, "rebuild even if below the tombstone-ratio threshold")

	rootCmd.AddCommand(createCmd, insertCmd, deleteCmd, searchCmd, checkpointCmd, rebuildCmd, listCmd, dropCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
