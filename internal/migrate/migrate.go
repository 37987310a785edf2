// Package migrate applies an operator-supplied batch of host-group renames,
// the forward operation whose effects the reconciler can later undo from a
// snapshot.
//
// Renaming a group to the offline sentinel name is a decommission: the
// group's hosts are moved into the sentinel group and the emptied source
// group is deleted afterwards. A full topology snapshot is always captured
// before the first mutation.
package migrate

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	zbxerr "github.com/zbxops/zbxtool/internal/errors"
	"github.com/zbxops/zbxtool/internal/outcome"
	"github.com/zbxops/zbxtool/internal/snapshot"
	"github.com/zbxops/zbxtool/pkg/zabbix"
)

// SkipMarker in the new-name column means the row needs no change.
const SkipMarker = "unchanged"

// Change is one requested rename.
type Change struct {
	OriginalName string
	NewName      string
}

// ParseChanges reads the operator CSV. The header row must carry
// original_name and new_name columns; rows with a blank or "unchanged" new
// name are dropped.
func ParseChanges(r io.Reader) ([]Change, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	origCol, newCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "original_name":
			origCol = i
		case "new_name":
			newCol = i
		}
	}
	if origCol < 0 || newCol < 0 {
		return nil, fmt.Errorf("CSV header must contain original_name and new_name columns, got %v", header)
	}

	var changes []Change
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}

		orig := strings.TrimSpace(row[origCol])
		next := strings.TrimSpace(row[newCol])
		if orig == "" || next == "" || strings.EqualFold(next, SkipMarker) {
			continue
		}
		changes = append(changes, Change{OriginalName: orig, NewName: next})
	}
	return changes, nil
}

// API is the remote surface the migrator consumes.
type API interface {
	AllHostGroupsWithHosts(ctx context.Context) ([]zabbix.HostGroup, error)
	HostGroupByID(ctx context.Context, groupID string) (*zabbix.HostGroup, error)
	HostGroupsByName(ctx context.Context, name string) ([]zabbix.HostGroup, error)
	CreateHostGroup(ctx context.Context, name string) (string, error)
	RenameHostGroup(ctx context.Context, groupID, name string) error
	DeleteHostGroup(ctx context.Context, groupID string) error
	HostsInGroup(ctx context.Context, groupID string, limit int) ([]zabbix.HostRef, error)
	SetHostGroups(ctx context.Context, hostID string, groupIDs []string) error
}

// Migrator applies rename batches.
type Migrator struct {
	api          API
	offlineGroup string
	backupDir    string
}

// New creates a migrator. Snapshots are written into backupDir before any
// mutation.
func New(api API, offlineGroup, backupDir string) *Migrator {
	return &Migrator{api: api, offlineGroup: offlineGroup, backupDir: backupDir}
}

// Apply captures a backup snapshot, applies every change with per-entity
// failure isolation, then deletes source groups emptied by decommissioning.
// It returns the report and the backup file path.
func (m *Migrator) Apply(ctx context.Context, changes []Change) (*outcome.Report, string, error) {
	if len(changes) == 0 {
		return nil, "", zbxerr.Precondition("migrate", fmt.Errorf("no changes to apply"))
	}

	snap, err := snapshot.Capture(ctx, m.api)
	if err != nil {
		return nil, "", zbxerr.Precondition("migrate", fmt.Errorf("backup before migration: %w", err))
	}
	backupPath, err := snap.Save(m.backupDir)
	if err != nil {
		return nil, "", zbxerr.Precondition("migrate", fmt.Errorf("backup before migration: %w", err))
	}
	log.Info().Str("file", backupPath).Int("groups", snap.Len()).Msg("Captured pre-migration snapshot")

	report := outcome.NewReport()
	var cleanup []string
	for _, change := range changes {
		if emptied := m.applyChange(ctx, change, report); emptied != "" {
			cleanup = append(cleanup, emptied)
		}
	}

	m.cleanupEmptyGroups(ctx, cleanup, report)

	summary := report.Summary()
	log.Info().
		Int("changes", len(changes)).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("Migration complete")
	return report, backupPath, nil
}

// applyChange handles one rename. The returned group ID, when non-empty,
// identifies a source group emptied by a decommission move.
func (m *Migrator) applyChange(ctx context.Context, change Change, report *outcome.Report) string {
	entityKey := "group/" + change.OriginalName

	group, err := m.findGroup(ctx, change.OriginalName)
	if err != nil {
		log.Error().Err(err).Str("group", change.OriginalName).Msg("Group lookup failed")
		report.Failure(entityKey, outcome.ActionRenamed, err.Error())
		return ""
	}
	if group == nil {
		log.Warn().Str("group", change.OriginalName).Msg("No unambiguous group match, skipping")
		report.Success(entityKey, outcome.ActionSkipped, "no unambiguous group match")
		return ""
	}

	if change.NewName == m.offlineGroup {
		moved, err := m.decommission(ctx, group)
		if err != nil {
			report.Failure(entityKey, outcome.ActionMoved, err.Error())
			return ""
		}
		report.Success(entityKey, outcome.ActionMoved, fmt.Sprintf("%d hosts moved to %q", moved, m.offlineGroup))
		return group.GroupID
	}

	finalName := KeepPrefix(group.Name, change.NewName)
	if err := m.api.RenameHostGroup(ctx, group.GroupID, finalName); err != nil {
		log.Error().Err(err).Str("group", group.Name).Str("to", finalName).Msg("Rename failed")
		report.Failure(entityKey, outcome.ActionRenamed, err.Error())
		return ""
	}
	log.Info().Str("from", group.Name).Str("to", finalName).Msg("Renamed group")
	report.Success(entityKey, outcome.ActionRenamed, fmt.Sprintf("%s -> %s", group.Name, finalName))
	return ""
}

// findGroup looks a group up by exact name, then with each single-letter
// prefix operators use for ordering. Returns nil when no match or more than
// one match is found.
func (m *Migrator) findGroup(ctx context.Context, name string) (*zabbix.HostGroup, error) {
	candidates := make([]string, 0, 27)
	candidates = append(candidates, name)
	for c := 'a'; c <= 'z'; c++ {
		candidates = append(candidates, fmt.Sprintf("%c_%s", c, name))
	}

	for _, candidate := range candidates {
		groups, err := m.api.HostGroupsByName(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if len(groups) == 0 {
			continue
		}
		if len(groups) > 1 {
			log.Warn().Str("name", candidate).Int("matches", len(groups)).Msg("Group name matches multiple groups")
			return nil, nil
		}
		return &groups[0], nil
	}
	return nil, nil
}

// KeepPrefix carries a single-letter ordering prefix from the old group
// name over to the new one, so "b_payments" renamed to "billing" becomes
// "b_billing".
func KeepPrefix(oldName, newName string) string {
	idx := strings.Index(oldName, "_")
	if idx <= 0 {
		return newName
	}
	prefix := oldName[:idx+1]
	if strings.HasPrefix(newName, prefix) {
		return newName
	}
	return prefix + newName
}

// decommission moves every host of the group into the offline sentinel
// group, creating the sentinel if needed, and returns the number of hosts
// moved.
func (m *Migrator) decommission(ctx context.Context, group *zabbix.HostGroup) (int, error) {
	hosts, err := m.api.HostsInGroup(ctx, group.GroupID, 0)
	if err != nil {
		return 0, fmt.Errorf("list hosts of %q: %w", group.Name, err)
	}

	sentinelID, err := m.ensureOfflineGroup(ctx)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, h := range hosts {
		if err := m.api.SetHostGroups(ctx, h.HostID, []string{sentinelID}); err != nil {
			log.Error().Err(err).Str("host", h.Name).Str("group", group.Name).Msg("Host move failed")
			continue
		}
		moved++
	}
	log.Info().Str("group", group.Name).Int("moved", moved).Int("total", len(hosts)).Msg("Moved hosts to offline group")
	return moved, nil
}

func (m *Migrator) ensureOfflineGroup(ctx context.Context) (string, error) {
	groups, err := m.api.HostGroupsByName(ctx, m.offlineGroup)
	if err != nil {
		return "", fmt.Errorf("resolve offline group: %w", err)
	}
	if len(groups) > 0 {
		return groups[0].GroupID, nil
	}
	id, err := m.api.CreateHostGroup(ctx, m.offlineGroup)
	if err != nil {
		return "", fmt.Errorf("create offline group: %w", err)
	}
	log.Info().Str("group", m.offlineGroup).Str("groupID", id).Msg("Created offline group")
	return id, nil
}

// cleanupEmptyGroups deletes the source groups emptied by decommissioning,
// probing each group first so a group that regained hosts is left alone.
func (m *Migrator) cleanupEmptyGroups(ctx context.Context, groupIDs []string, report *outcome.Report) {
	for _, id := range groupIDs {
		group, err := m.api.HostGroupByID(ctx, id)
		if err != nil || group == nil {
			log.Warn().Err(err).Str("groupID", id).Msg("Cleanup lookup failed, skipping")
			continue
		}
		entityKey := "group/" + group.Name

		hosts, err := m.api.HostsInGroup(ctx, id, 1)
		if err != nil {
			report.Failure(entityKey, outcome.ActionDeleted, fmt.Sprintf("emptiness probe: %v", err))
			continue
		}
		if len(hosts) > 0 {
			log.Warn().Str("group", group.Name).Msg("Group not empty, skipping deletion")
			report.Success(entityKey, outcome.ActionSkipped, "group not empty")
			continue
		}

		if err := m.api.DeleteHostGroup(ctx, id); err != nil {
			log.Error().Err(err).Str("group", group.Name).Msg("Group deletion failed")
			report.Failure(entityKey, outcome.ActionDeleted, err.Error())
			continue
		}
		log.Info().Str("group", group.Name).Msg("Deleted empty group")
		report.Success(entityKey, outcome.ActionDeleted, "")
	}
}
