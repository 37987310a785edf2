// Package templates migrates hosts from one monitoring template to another.
//
// Template resolution is a precondition: an unresolvable template name fails
// the whole operation before any mutation, because it would otherwise fail
// identically for every host in scope. Per-host failures after that are
// isolated and recorded.
package templates

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zbxops/zbxtool/internal/drift"
	zbxerr "github.com/zbxops/zbxtool/internal/errors"
	"github.com/zbxops/zbxtool/internal/outcome"
	"github.com/zbxops/zbxtool/pkg/zabbix"
)

// ScopeKind selects how the replacement target set is addressed.
type ScopeKind string

const (
	ScopeHostName ScopeKind = "host-name"
	ScopeHostID   ScopeKind = "host-id"
	ScopeGroup    ScopeKind = "group"
)

// Scope is the set of hosts a replacement applies to: a single host by name
// or ID, or every host in a group.
type Scope struct {
	Kind  ScopeKind
	Value string
}

// API is the remote surface the replacer consumes.
type API interface {
	TemplateByName(ctx context.Context, name string) (*zabbix.Template, error)
	HostByID(ctx context.Context, hostID string) (*zabbix.Host, error)
	HostByName(ctx context.Context, name string) (*zabbix.Host, error)
	HostGroupsByName(ctx context.Context, name string) ([]zabbix.HostGroup, error)
	HostsInGroup(ctx context.Context, groupID string, limit int) ([]zabbix.HostRef, error)
	HostTemplates(ctx context.Context, hostID string) ([]zabbix.Template, error)
	SetHostTemplates(ctx context.Context, hostID string, templateIDs []string) error
}

// Replacer swaps one template reference for another across a host scope.
type Replacer struct {
	api      API
	detector *drift.Detector
}

// New creates a replacer. detector may be nil when drift detection is never
// requested.
func New(api API, detector *drift.Detector) *Replacer {
	return &Replacer{api: api, detector: detector}
}

// Replace swaps oldName for newName on every host in scope. When
// detectDrift is set, the hosts that were actually migrated are scanned for
// host-authored rules afterwards and the findings returned alongside
// supplementary outcome records.
func (r *Replacer) Replace(ctx context.Context, scope Scope, oldName, newName string, detectDrift bool) (*outcome.Report, []drift.Rule, error) {
	oldTpl, err := r.resolveTemplate(ctx, oldName)
	if err != nil {
		return nil, nil, err
	}
	newTpl, err := r.resolveTemplate(ctx, newName)
	if err != nil {
		return nil, nil, err
	}

	hosts, err := r.resolveScope(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("old", oldTpl.Name).
		Str("new", newTpl.Name).
		Int("hosts", len(hosts)).
		Msg("Starting template replacement")

	report := outcome.NewReport()
	var migrated []zabbix.HostRef
	for _, h := range hosts {
		if r.replaceOnHost(ctx, h, oldTpl, newTpl, report) {
			migrated = append(migrated, h)
		}
	}

	summary := report.Summary()
	log.Info().
		Int("migrated", len(migrated)).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("Template replacement complete")

	var rules []drift.Rule
	if detectDrift && r.detector != nil && len(migrated) > 0 {
		rules, err = r.detector.ScanHosts(ctx, migrated)
		if err != nil {
			return report, nil, err
		}
		for _, rule := range rules {
			report.Success("host/"+rule.HostName, outcome.ActionDrift,
				fmt.Sprintf("host-authored rule %s: %s", rule.RuleID, rule.Description))
		}
	}
	return report, rules, nil
}

// replaceOnHost performs one read-swap-write cycle and reports whether the
// host's template set was actually rewritten.
func (r *Replacer) replaceOnHost(ctx context.Context, h zabbix.HostRef, oldTpl, newTpl *zabbix.Template, report *outcome.Report) bool {
	entityKey := "host/" + hostLabel(h)

	current, err := r.api.HostTemplates(ctx, h.HostID)
	if err != nil {
		log.Error().Err(err).Str("host", hostLabel(h)).Msg("Template set read failed")
		report.Failure(entityKey, outcome.ActionReplaced, fmt.Sprintf("read templates: %v", err))
		return false
	}

	next, present := SwapTemplate(current, oldTpl.TemplateID, newTpl.TemplateID)
	if !present {
		// Replacement is only meaningful where the old template is attached.
		log.Warn().Str("host", hostLabel(h)).Str("template", oldTpl.Name).Msg("Old template not attached, skipping host")
		report.Success(entityKey, outcome.ActionSkipped, fmt.Sprintf("template %q not attached", oldTpl.Name))
		return false
	}

	if err := r.api.SetHostTemplates(ctx, h.HostID, next); err != nil {
		log.Error().Err(err).Str("host", hostLabel(h)).Msg("Template set write failed")
		report.Failure(entityKey, outcome.ActionReplaced, fmt.Sprintf("write templates: %v", err))
		return false
	}

	log.Info().Str("host", hostLabel(h)).Str("old", oldTpl.Name).Str("new", newTpl.Name).Msg("Replaced template")
	report.Success(entityKey, outcome.ActionReplaced, fmt.Sprintf("%s -> %s", oldTpl.Name, newTpl.Name))
	return true
}

// SwapTemplate computes the post-replacement template ID set: the old ID's
// slot is taken by the new ID in place, every unrelated reference is
// preserved untouched. present reports whether the old ID was attached at
// all.
func SwapTemplate(current []zabbix.Template, oldID, newID string) (next []string, present bool) {
	next = make([]string, 0, len(current))
	for _, tpl := range current {
		if tpl.TemplateID == oldID {
			next = append(next, newID)
			present = true
			continue
		}
		next = append(next, tpl.TemplateID)
	}
	return next, present
}

func (r *Replacer) resolveTemplate(ctx context.Context, name string) (*zabbix.Template, error) {
	tpl, err := r.api.TemplateByName(ctx, name)
	if err != nil {
		return nil, zbxerr.Precondition("replace_template", fmt.Errorf("resolve template %q: %w", name, err))
	}
	if tpl == nil {
		return nil, zbxerr.Precondition("replace_template", fmt.Errorf("template %q: %w", name, zbxerr.ErrTemplateNotFound))
	}
	return tpl, nil
}

func (r *Replacer) resolveScope(ctx context.Context, scope Scope) ([]zabbix.HostRef, error) {
	switch scope.Kind {
	case ScopeHostName:
		host, err := r.api.HostByName(ctx, scope.Value)
		if err != nil {
			return nil, zbxerr.Precondition("replace_template", err)
		}
		if host == nil {
			return nil, zbxerr.Precondition("replace_template",
				fmt.Errorf("host %q: %w", scope.Value, zbxerr.ErrHostNotFound))
		}
		return []zabbix.HostRef{{HostID: host.HostID, Name: host.Name}}, nil
	case ScopeHostID:
		host, err := r.api.HostByID(ctx, scope.Value)
		if err != nil {
			return nil, zbxerr.Precondition("replace_template", err)
		}
		if host == nil {
			return nil, zbxerr.Precondition("replace_template",
				fmt.Errorf("host ID %q: %w", scope.Value, zbxerr.ErrHostNotFound))
		}
		return []zabbix.HostRef{{HostID: host.HostID, Name: host.Name}}, nil
	case ScopeGroup:
		groups, err := r.api.HostGroupsByName(ctx, scope.Value)
		if err != nil {
			return nil, zbxerr.Precondition("replace_template", err)
		}
		if len(groups) == 0 {
			return nil, zbxerr.Precondition("replace_template",
				fmt.Errorf("group %q: %w", scope.Value, zbxerr.ErrGroupNotFound))
		}
		return r.api.HostsInGroup(ctx, groups[0].GroupID, 0)
	default:
		return nil, zbxerr.Precondition("replace_template", fmt.Errorf("unknown scope kind %q", scope.Kind))
	}
}

func hostLabel(h zabbix.HostRef) string {
	if h.Name != "" {
		return h.Name
	}
	return h.HostID
}
