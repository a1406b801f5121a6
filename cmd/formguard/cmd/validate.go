package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/formguard/internal/core/config"
	"github.com/solatis/formguard/internal/core/db"
	"github.com/solatis/formguard/internal/core/recordstore"
	"github.com/solatis/formguard/internal/engine"
	"github.com/solatis/formguard/internal/forms"
	"github.com/solatis/formguard/internal/perf"
	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/ruleset"
	"github.com/solatis/formguard/internal/types"
)

// ErrNotSubmittable is returned when at least one record cannot be submitted.
var ErrNotSubmittable = errors.New("one or more records cannot be submitted")

var validateCmd = &cobra.Command{
	Use:   "validate RECORD.json...",
	Short: "Validate records and print their summaries as JSON",
	Long: `Validates every record in the given JSON files. A file holds one record
object or an array of them. Each record is validated by its own engine, as if
submitted from its own form, against the stored records and the records
before it in the batch. The exit status is non-zero when any record
cannot be submitted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("entity", "", "entity type of the records (holiday, workOrder, ...)")
	validateCmd.Flags().StringSlice("rules", nil, "rule files (YAML or TOML) added after the built-in rules")
	validateCmd.Flags().Bool("no-builtin", false, "skip the built-in form rules")
	validateCmd.Flags().Bool("save", false, "store submittable records in the record store")
	_ = validateCmd.MarkFlagRequired("entity")
}

// recordReport is the JSON output for one validated record.
type recordReport struct {
	File    string                  `json:"file"`
	Index   int                     `json:"index"`
	ID      string                  `json:"id,omitempty"`
	Summary types.ValidationSummary `json:"summary"`
	SavedAs string                  `json:"savedAs,omitempty"`
	Metrics perf.Metrics            `json:"metrics"`
}

type input struct {
	file   string
	index  int
	record types.Record
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)

	entityName, _ := cmd.Flags().GetString("entity")
	ruleFiles, _ := cmd.Flags().GetStringSlice("rules")
	noBuiltin, _ := cmd.Flags().GetBool("no-builtin")
	save, _ := cmd.Flags().GetBool("save")
	entity := types.EntityType(entityName)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src := ruleset.Source{Forms: cfg.Forms(), Paths: ruleFiles}
	if !noBuiltin && slices.Contains(forms.Entities(), entity) {
		src.Builtin = []types.EntityType{entity}
	}
	set, err := ruleset.Load(src)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	registry := rules.NewRegistry(set)

	inputs, err := readRecords(args)
	if err != nil {
		return err
	}

	var store *recordstore.Store
	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()
		if store, err = recordstore.New(database); err != nil {
			return err
		}
	} else if save {
		return fmt.Errorf("--save requires --db-url or FG_DATABASE_URL")
	}

	var existing []types.Record
	if store != nil {
		if existing, err = store.Snapshot(ctx, entity); err != nil {
			return err
		}
		logger.Debug("loaded existing records", zap.String("entity", entityName), zap.Int("count", len(existing)))
	}

	reports, err := validateAll(ctx, registry, entity, cfg, inputs, existing)
	if err != nil {
		return err
	}

	blocked := 0
	for i := range reports {
		if !reports[i].Summary.CanSubmit {
			blocked++
			continue
		}
		if save {
			id, err := store.Put(ctx, entity, inputs[i].record)
			if err != nil {
				return err
			}
			reports[i].SavedAs = id
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return err
	}

	logger.Info("validation finished",
		zap.String("entity", entityName),
		zap.Int("records", len(reports)),
		zap.Int("blocked", blocked))
	if blocked > 0 {
		return fmt.Errorf("%w: %d of %d", ErrNotSubmittable, blocked, len(reports))
	}
	return nil
}

// validateAll validates inputs concurrently, one engine per record.
// Reports keep input order. Earlier records of the batch count as existing
// records for later ones, so two overlapping holidays or a repeated RFI
// number in one batch block the later record.
func validateAll(ctx context.Context, registry *rules.Registry, entity types.EntityType, cfg *config.EngineConfig, inputs []input, existing []types.Record) ([]recordReport, error) {
	reports := make([]recordReport, len(inputs))
	snapshots := make([][]types.Record, len(inputs))
	for i := range inputs {
		snap := make([]types.Record, 0, len(existing)+i)
		snap = append(snap, existing...)
		for _, peer := range inputs[:i] {
			snap = append(snap, peer.record)
		}
		snapshots[i] = snap
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			e, err := engine.New(registry,
				engine.WithEntity(entity),
				engine.WithConfig(cfg.Engine()),
				engine.WithLogger(logger.With(zap.String("file", in.file), zap.Int("index", in.index))))
			if err != nil {
				return err
			}
			defer e.Close()

			summary, err := e.ValidateForm(gctx, in.record, snapshots[i])
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", in.file, in.index, err)
			}
			reports[i] = recordReport{
				File:    in.file,
				Index:   in.index,
				ID:      rules.ToText(in.record.Get(recordstore.IDField)),
				Summary: summary,
				Metrics: e.Metrics(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// readRecords decodes every file as a record object or an array of records.
func readRecords(paths []string) ([]input, error) {
	var out []input
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read record file: %w", err)
		}

		var many []types.Record
		if err := json.Unmarshal(data, &many); err == nil {
			for i, rec := range many {
				out = append(out, input{file: p, index: i, record: rec})
			}
			continue
		}
		var one types.Record
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("%s: expected a record object or an array of records: %w", p, err)
		}
		out = append(out, input{file: p, record: one})
	}
	return out, nil
}
