package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/formguard/internal/core/config"
	"github.com/solatis/formguard/internal/forms"
	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/ruleset"
	"github.com/solatis/formguard/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and watch rule files",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [RULES...]",
	Short: "Compile rule files and print what they define",
	Long: `Compiles the given rule files, together with the built-in rules of --entity
when it names a built-in form, and reports duplicate IDs, unknown kinds and
invalid expressions. Prints a per-field and per-entity rule count on success.`,
	RunE: runRulesCheck,
}

var rulesWatchCmd = &cobra.Command{
	Use:   "watch RULES...",
	Short: "Recompile rule files whenever they change",
	Long: `Watches the given rule files and recompiles them on every change. A file
that fails to compile is reported and the last good rule set stays active.
Runs until interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRulesWatch,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd, rulesWatchCmd)
	rulesCmd.PersistentFlags().String("entity", "", "include the built-in rules of this form")
}

func rulesSource(cmd *cobra.Command, cfg *config.EngineConfig, paths []string) (ruleset.Source, error) {
	entity, _ := cmd.Flags().GetString("entity")
	src := ruleset.Source{Forms: cfg.Forms(), Paths: paths}
	if entity != "" {
		if !slices.Contains(forms.Entities(), types.EntityType(entity)) {
			return src, fmt.Errorf("%w: %s", types.ErrUnknownEntity, entity)
		}
		src.Builtin = []types.EntityType{types.EntityType(entity)}
	}
	if len(src.Builtin) == 0 && len(paths) == 0 {
		return src, fmt.Errorf("nothing to check: pass rule files or --entity")
	}
	return src, nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := rulesSource(cmd, cfg, args)
	if err != nil {
		return err
	}
	set, err := ruleset.Load(src)
	if err != nil {
		return err
	}
	printRuleSet(cmd.OutOrStdout(), set)
	return nil
}

func printRuleSet(w io.Writer, set *rules.RuleSet) {
	for _, f := range set.Fields() {
		fmt.Fprintf(w, "field %-20s %d rule(s)\n", f, len(set.FieldRules(f)))
	}
	for _, e := range set.Entities() {
		fmt.Fprintf(w, "entity %-19s %d cross-field, %d business\n",
			e, len(set.CrossFieldRules(e)), len(set.BusinessRules(e)))
	}
}

func runRulesWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := rulesSource(cmd, cfg, args)
	if err != nil {
		return err
	}
	set, err := ruleset.Load(src)
	if err != nil {
		return err
	}
	registry := rules.NewRegistry(set)
	out := cmd.OutOrStdout()
	printRuleSet(out, set)

	w, err := ruleset.NewWatcher(registry, src,
		ruleset.WithWatchLogger(logger),
		ruleset.WithOnReload(func(err error) {
			if err != nil {
				fmt.Fprintf(out, "reload failed: %v\n", err)
				return
			}
			printRuleSet(out, registry.Snapshot())
		}))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	<-ctx.Done()
	logger.Info("shutting down rule watcher")
	w.Stop()
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
