package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zbxops/zbxtool/internal/config"
	"github.com/zbxops/zbxtool/internal/drift"
	"github.com/zbxops/zbxtool/internal/logging"
	"github.com/zbxops/zbxtool/internal/migrate"
	"github.com/zbxops/zbxtool/internal/outcome"
	"github.com/zbxops/zbxtool/internal/reconcile"
	"github.com/zbxops/zbxtool/internal/report"
	"github.com/zbxops/zbxtool/internal/snapshot"
	"github.com/zbxops/zbxtool/internal/templates"
	"github.com/zbxops/zbxtool/pkg/zabbix"
)

// session bundles the pieces every subcommand needs: validated configuration,
// a logged-in API client, and a context carrying the run ID.
type session struct {
	ctx    context.Context
	cfg    *config.Config
	client *zabbix.Client
}

// openSession loads configuration, initializes logging, and logs in to the
// Zabbix API. The returned closer logs out; call it via defer.
func openSession() (*session, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel})

	ctx, runID := logging.WithRunID(context.Background(), "")
	log.Debug().Str("runId", runID).Str("url", cfg.URL).Msg("Starting run")

	client, err := zabbix.NewClient(zabbix.ClientConfig{
		URL:      cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := client.Login(ctx); err != nil {
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}

	closer := func() {
		if err := client.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("Logout failed")
		}
	}
	return &session{ctx: ctx, cfg: cfg, client: client}, closer, nil
}

// finishRun writes the outcome report to a CSV file, prints the aggregate
// counts, and returns an error when any operation failed so the process
// exits non-zero.
func finishRun(cfg *config.Config, title, stem string, rep *outcome.Report) error {
	data, err := report.OutcomesCSV(title, rep)
	if err != nil {
		return err
	}
	path, err := report.WriteFile(cfg.OutputDir, stem, data)
	if err != nil {
		return err
	}

	sum := rep.Summary()
	fmt.Printf("Succeeded: %d\n", sum.Succeeded)
	fmt.Printf("Failed: %d\n", sum.Failed)
	fmt.Printf("Report: %s\n", path)

	if sum.Failed > 0 {
		return fmt.Errorf("%d operation(s) failed, see %s", sum.Failed, path)
	}
	return nil
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Capture host group membership to a snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		snap, err := snapshot.Capture(sess.ctx, sess.client)
		if err != nil {
			return err
		}
		path, err := snap.Save(sess.cfg.OutputDir)
		if err != nil {
			return err
		}
		fmt.Printf("Groups: %d\n", snap.Len())
		fmt.Printf("Snapshot: %s\n", path)
		return nil
	},
}

var (
	reconcileSnapshotPath string
	reconcileLatest       bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Restore host group names and membership from a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (reconcileSnapshotPath == "") == !reconcileLatest {
			return fmt.Errorf("exactly one of --snapshot or --latest is required")
		}

		sess, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		path := reconcileSnapshotPath
		if reconcileLatest {
			path, err = snapshot.Latest(sess.cfg.OutputDir)
			if err != nil {
				return err
			}
		}
		snap, err := snapshot.Load(path)
		if err != nil {
			return err
		}
		log.Info().Str("snapshot", path).Int("groups", snap.Len()).Msg("Reconciling from snapshot")

		rep, err := reconcile.New(sess.client, sess.cfg.OfflineGroup).Reconcile(sess.ctx, snap)
		if err != nil {
			return err
		}
		return finishRun(sess.cfg, "Host Group Reconciliation", "reconcile", rep)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <changes.csv>",
	Short: "Apply a CSV of host group renames and decommissions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		changes, err := migrate.ParseChanges(f)
		f.Close()
		if err != nil {
			return err
		}

		sess, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		m := migrate.New(sess.client, sess.cfg.OfflineGroup, sess.cfg.OutputDir)
		rep, backupPath, err := m.Apply(sess.ctx, changes)
		if err != nil {
			return err
		}
		fmt.Printf("Backup: %s\n", backupPath)
		return finishRun(sess.cfg, "Host Group Migration", "migrate", rep)
	},
}

var (
	replaceHostName string
	replaceHostID   string
	replaceGroup    string
	replaceOld      string
	replaceNew      string
	replaceDrift    bool
)

var replaceTemplateCmd = &cobra.Command{
	Use:   "replace-template",
	Short: "Swap one template for another across a host or group",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := replaceScope()
		if err != nil {
			return err
		}
		if replaceOld == "" || replaceNew == "" {
			return fmt.Errorf("--old and --new are required")
		}

		sess, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		r := templates.New(sess.client, drift.New(sess.client))
		rep, rules, err := r.Replace(sess.ctx, scope, replaceOld, replaceNew, replaceDrift)
		if err != nil {
			return err
		}

		if len(rules) > 0 {
			data, err := report.DriftCSV(rules)
			if err != nil {
				return err
			}
			path, err := report.WriteFile(sess.cfg.OutputDir, "drift_"+report.SanitizeFilename(replaceOld), data)
			if err != nil {
				return err
			}
			fmt.Printf("Host-authored rules: %d\n", len(rules))
			fmt.Printf("Drift report: %s\n", path)
		}
		return finishRun(sess.cfg, "Template Replacement", "replace_template", rep)
	},
}

func replaceScope() (templates.Scope, error) {
	set := 0
	var scope templates.Scope
	if replaceHostName != "" {
		set++
		scope = templates.Scope{Kind: templates.ScopeHostName, Value: replaceHostName}
	}
	if replaceHostID != "" {
		set++
		scope = templates.Scope{Kind: templates.ScopeHostID, Value: replaceHostID}
	}
	if replaceGroup != "" {
		set++
		scope = templates.Scope{Kind: templates.ScopeGroup, Value: replaceGroup}
	}
	if set != 1 {
		return templates.Scope{}, fmt.Errorf("exactly one of --host, --host-id, or --group is required")
	}
	return scope, nil
}

var (
	driftHostName  string
	driftGroupName string
)

var detectDriftCmd = &cobra.Command{
	Use:   "detect-drift",
	Short: "List alert rules authored directly on hosts instead of templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (driftHostName == "") == (driftGroupName == "") {
			return fmt.Errorf("exactly one of --host or --group is required")
		}

		sess, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		scope := drift.Scope{HostName: driftHostName, GroupName: driftGroupName}
		rules, err := drift.New(sess.client).FindHostAuthored(sess.ctx, scope)
		if err != nil {
			return err
		}

		fmt.Printf("Host-authored rules: %d\n", len(rules))
		if len(rules) == 0 {
			return nil
		}
		data, err := report.DriftCSV(rules)
		if err != nil {
			return err
		}
		stem := driftHostName
		if stem == "" {
			stem = driftGroupName
		}
		path, err := report.WriteFile(sess.cfg.OutputDir, "drift_"+report.SanitizeFilename(stem), data)
		if err != nil {
			return err
		}
		fmt.Printf("Drift report: %s\n", path)
		return nil
	},
}

var deleteTriggersCmd = &cobra.Command{
	Use:   "delete-triggers <rule-id>...",
	Short: "Delete host-authored alert rules by ID",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		rep := outcome.NewReport()
		for _, id := range args {
			if err := sess.client.DeleteTrigger(sess.ctx, id); err != nil {
				log.Error().Err(err).Str("triggerId", id).Msg("Failed to delete trigger")
				rep.Failure("trigger/"+id, outcome.ActionDeleted, err.Error())
				continue
			}
			log.Info().Str("triggerId", id).Msg("Trigger deleted")
			rep.Success("trigger/"+id, outcome.ActionDeleted, "")
		}
		return finishRun(sess.cfg, "Trigger Deletion", "delete_triggers", rep)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileSnapshotPath, "snapshot", "", "path to a snapshot file")
	reconcileCmd.Flags().BoolVar(&reconcileLatest, "latest", false, "use the newest snapshot in the output directory")

	replaceTemplateCmd.Flags().StringVar(&replaceHostName, "host", "", "target a single host by name")
	replaceTemplateCmd.Flags().StringVar(&replaceHostID, "host-id", "", "target a single host by ID")
	replaceTemplateCmd.Flags().StringVar(&replaceGroup, "group", "", "target every host in a group")
	replaceTemplateCmd.Flags().StringVar(&replaceOld, "old", "", "template to remove")
	replaceTemplateCmd.Flags().StringVar(&replaceNew, "new", "", "template to attach in its place")
	replaceTemplateCmd.Flags().BoolVar(&replaceDrift, "detect-drift", false, "scan migrated hosts for host-authored alert rules")

	detectDriftCmd.Flags().StringVar(&driftHostName, "host", "", "scan a single host by name")
	detectDriftCmd.Flags().StringVar(&driftGroupName, "group", "", "scan every host in a group")
}
