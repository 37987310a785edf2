// Package reconcile restores host-group names and group-to-host membership
// to the state recorded in a snapshot.
//
// Reconciliation is idempotent and safely repeatable: every branch takes the
// "already correct" path when live state matches the snapshot, so a re-run
// against the same snapshot issues no writes. There is no rollback; the
// corrective action for a partial failure is another run.
package reconcile

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	zbxerr "github.com/zbxops/zbxtool/internal/errors"
	"github.com/zbxops/zbxtool/internal/outcome"
	"github.com/zbxops/zbxtool/internal/snapshot"
	"github.com/zbxops/zbxtool/pkg/zabbix"
)

// API is the remote surface the reconciler consumes.
type API interface {
	HostGroupByID(ctx context.Context, groupID string) (*zabbix.HostGroup, error)
	HostGroupsByName(ctx context.Context, name string) ([]zabbix.HostGroup, error)
	CreateHostGroup(ctx context.Context, name string) (string, error)
	RenameHostGroup(ctx context.Context, groupID, name string) error
	HostGroupIDs(ctx context.Context, hostID string) ([]string, error)
	SetHostGroups(ctx context.Context, hostID string, groupIDs []string) error
}

// Reconciler diffs a snapshot against live group state and issues the
// minimal set of corrective calls.
type Reconciler struct {
	api          API
	offlineGroup string
}

// New creates a reconciler. offlineGroup names the sentinel group whose
// membership is cleared when a host is restored to a real group.
func New(api API, offlineGroup string) *Reconciler {
	return &Reconciler{api: api, offlineGroup: offlineGroup}
}

// Reconcile restores every group in the snapshot, in snapshot order. Per-
// entity failures are recorded and do not stop the run; the returned error
// is non-nil only for precondition failures, before any mutation.
func (r *Reconciler) Reconcile(ctx context.Context, snap *snapshot.Snapshot) (*outcome.Report, error) {
	if snap == nil {
		return nil, zbxerr.Precondition("reconcile", fmt.Errorf("no snapshot loaded"))
	}

	sentinels, err := r.sentinelGroupIDs(ctx)
	if err != nil {
		return nil, zbxerr.Precondition("reconcile", fmt.Errorf("resolve offline group %q: %w", r.offlineGroup, err))
	}

	report := outcome.NewReport()
	for _, rec := range snap.Groups {
		r.reconcileGroup(ctx, rec, sentinels, report)
	}

	summary := report.Summary()
	log.Info().
		Int("groups", snap.Len()).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("Reconciliation complete")
	return report, nil
}

// sentinelGroupIDs resolves the offline group name to its ID set. An absent
// sentinel group is not an error; there is simply nothing to strip.
func (r *Reconciler) sentinelGroupIDs(ctx context.Context) (map[string]struct{}, error) {
	groups, err := r.api.HostGroupsByName(ctx, r.offlineGroup)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		ids[g.GroupID] = struct{}{}
	}
	return ids, nil
}

// reconcileGroup drives one group through
// unchecked -> {recreated | renamed | unchanged} -> hosts-restored.
func (r *Reconciler) reconcileGroup(ctx context.Context, rec snapshot.GroupRecord, sentinels map[string]struct{}, report *outcome.Report) {
	entityKey := "group/" + rec.Name

	live, err := r.api.HostGroupByID(ctx, rec.GroupID)
	if err != nil {
		log.Error().Err(err).Str("group", rec.Name).Str("groupID", rec.GroupID).Msg("Group lookup failed")
		report.Failure(entityKey, outcome.ActionUnchanged, fmt.Sprintf("lookup: %v", err))
		return
	}

	action := outcome.ActionUnchanged
	targetID := rec.GroupID
	var renameErr error

	switch {
	case live == nil:
		// Recreated groups keep only the name; the remote system assigns a
		// fresh ID.
		newID, err := r.api.CreateHostGroup(ctx, rec.Name)
		if err != nil {
			log.Error().Err(err).Str("group", rec.Name).Msg("Group recreation failed")
			report.Failure(entityKey, outcome.ActionCreated, err.Error())
			return
		}
		log.Info().Str("group", rec.Name).Str("oldID", rec.GroupID).Str("newID", newID).Msg("Recreated missing group")
		action = outcome.ActionCreated
		targetID = newID
	case live.Name != rec.Name:
		if renameErr = r.api.RenameHostGroup(ctx, rec.GroupID, rec.Name); renameErr != nil {
			log.Error().Err(renameErr).Str("group", rec.Name).Str("current", live.Name).Msg("Group rename failed")
		} else {
			log.Info().Str("from", live.Name).Str("to", rec.Name).Msg("Renamed group")
		}
		action = outcome.ActionRenamed
	}

	restored, failed := r.restoreHosts(ctx, rec.Hosts, targetID, rec.Name, sentinels, report)

	detail := fmt.Sprintf("hosts restored: %d/%d", restored, restored+failed)
	if action == outcome.ActionCreated {
		detail = fmt.Sprintf("new ID %s (was %s); %s", targetID, rec.GroupID, detail)
	}
	if renameErr != nil {
		report.Failure(entityKey, action, fmt.Sprintf("rename: %v; %s", renameErr, detail))
		return
	}
	report.Success(entityKey, action, detail)
}

// restoreHosts ensures every recorded host is a member of targetID and no
// longer a member of the offline sentinel group, one membership write per
// host. Hosts whose membership already matches are left untouched. One
// host's failure does not block the rest.
func (r *Reconciler) restoreHosts(ctx context.Context, hosts []zabbix.HostRef, targetID, groupName string, sentinels map[string]struct{}, report *outcome.Report) (restored, failed int) {
	for _, h := range hosts {
		entityKey := "host/" + hostLabel(h)

		current, err := r.api.HostGroupIDs(ctx, h.HostID)
		if err != nil {
			log.Error().Err(err).Str("host", hostLabel(h)).Str("group", groupName).Msg("Host membership read failed")
			report.Failure(entityKey, outcome.ActionHostRestored, fmt.Sprintf("read membership: %v", err))
			failed++
			continue
		}

		next, changed := PlanMembership(current, sentinels, targetID)
		if !changed {
			log.Debug().Str("host", hostLabel(h)).Str("group", groupName).Msg("Host membership already correct")
			restored++
			continue
		}

		if err := r.api.SetHostGroups(ctx, h.HostID, next); err != nil {
			log.Error().Err(err).Str("host", hostLabel(h)).Str("group", groupName).Msg("Host membership write failed")
			report.Failure(entityKey, outcome.ActionHostRestored, fmt.Sprintf("write membership: %v", err))
			failed++
			continue
		}

		log.Info().Str("host", hostLabel(h)).Str("group", groupName).Strs("membership", next).Msg("Restored host membership")
		restored++
	}
	return restored, failed
}

// PlanMembership computes a host's corrected group membership: sentinel
// groups are dropped, the target group is ensured present, and the result
// is never empty. The reported change flag compares membership as sets, so
// an already-correct host yields no write.
func PlanMembership(current []string, sentinels map[string]struct{}, target string) (next []string, changed bool) {
	next = make([]string, 0, len(current)+1)
	for _, id := range current {
		if _, isSentinel := sentinels[id]; isSentinel {
			continue
		}
		next = append(next, id)
	}
	if !slices.Contains(next, target) {
		next = append(next, target)
	}
	if len(next) == 0 {
		// A host must keep at least one group membership.
		next = []string{target}
	}
	return next, !sameSet(current, next)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}

func hostLabel(h zabbix.HostRef) string {
	if h.Name != "" {
		return h.Name
	}
	return h.HostID
}
