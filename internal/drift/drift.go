// Package drift detects host-authored alerting rules: triggers attached
// directly to a host instead of inherited from a template. A template swap
// leaves these behind, so they are the drift a migration introduces.
//
// The detector is read-only. Deleting a reported rule is a separate,
// explicit write issued by the caller per rule ID.
package drift

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	zbxerr "github.com/zbxops/zbxtool/internal/errors"
	"github.com/zbxops/zbxtool/pkg/zabbix"
)

// Origin classifies where an alerting rule came from.
type Origin string

const (
	OriginTemplate     Origin = "template-derived"
	OriginHostAuthored Origin = "host-authored"
)

// Rule is one reported alerting rule. A trigger watching several items
// yields one Rule per item so reports stay flat; a trigger with no items
// yields a single Rule with empty item fields.
type Rule struct {
	RuleID      string
	HostID      string
	HostName    string
	Description string
	Expression  string
	Priority    string
	Enabled     bool
	ItemName    string
	ItemKey     string
	Origin      Origin
}

// Classify determines a trigger's origin from its originating-template
// linkage: no linkage means the rule was authored on the host.
func Classify(t zabbix.Trigger) Origin {
	if t.TemplateID == "" || t.TemplateID == "0" {
		return OriginHostAuthored
	}
	return OriginTemplate
}

// Scope selects the hosts to scan: a single host by name, or every host in
// a group.
type Scope struct {
	HostName  string
	GroupName string
}

// API is the remote surface the detector consumes.
type API interface {
	HostByName(ctx context.Context, name string) (*zabbix.Host, error)
	HostGroupsByName(ctx context.Context, name string) ([]zabbix.HostGroup, error)
	HostsInGroup(ctx context.Context, groupID string, limit int) ([]zabbix.HostRef, error)
	HostTriggers(ctx context.Context, hostID string) ([]zabbix.Trigger, error)
}

// Detector scans hosts for host-authored alerting rules.
type Detector struct {
	api API
}

// New creates a detector.
func New(api API) *Detector {
	return &Detector{api: api}
}

// FindHostAuthored returns every host-authored rule in scope, ordered host
// first, then trigger insertion order, for reproducible reporting.
func (d *Detector) FindHostAuthored(ctx context.Context, scope Scope) ([]Rule, error) {
	hosts, err := d.resolveScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	var rules []Rule
	for _, h := range hosts {
		found, err := d.scanHost(ctx, h)
		if err != nil {
			// Read-only scan: a failed host is logged and skipped, the rest
			// of the scope still gets scanned.
			log.Error().Err(err).Str("host", h.Name).Msg("Trigger scan failed")
			continue
		}
		rules = append(rules, found...)
	}

	log.Info().Int("hosts", len(hosts)).Int("rules", len(rules)).Msg("Drift scan complete")
	return rules, nil
}

// ScanHosts runs the detector over an explicit host list, preserving order.
// Used by the template replacer to check the hosts it just migrated.
func (d *Detector) ScanHosts(ctx context.Context, hosts []zabbix.HostRef) ([]Rule, error) {
	var rules []Rule
	for _, h := range hosts {
		found, err := d.scanHost(ctx, h)
		if err != nil {
			log.Error().Err(err).Str("host", h.Name).Msg("Trigger scan failed")
			continue
		}
		rules = append(rules, found...)
	}
	return rules, nil
}

func (d *Detector) resolveScope(ctx context.Context, scope Scope) ([]zabbix.HostRef, error) {
	switch {
	case scope.HostName != "":
		host, err := d.api.HostByName(ctx, scope.HostName)
		if err != nil {
			return nil, err
		}
		if host == nil {
			return nil, zbxerr.Precondition("detect_drift",
				fmt.Errorf("host %q: %w", scope.HostName, zbxerr.ErrHostNotFound))
		}
		return []zabbix.HostRef{{HostID: host.HostID, Name: host.Name}}, nil
	case scope.GroupName != "":
		groups, err := d.api.HostGroupsByName(ctx, scope.GroupName)
		if err != nil {
			return nil, err
		}
		if len(groups) == 0 {
			return nil, zbxerr.Precondition("detect_drift",
				fmt.Errorf("group %q: %w", scope.GroupName, zbxerr.ErrGroupNotFound))
		}
		return d.api.HostsInGroup(ctx, groups[0].GroupID, 0)
	default:
		return nil, zbxerr.Precondition("detect_drift", fmt.Errorf("scope requires a host or group name"))
	}
}

func (d *Detector) scanHost(ctx context.Context, h zabbix.HostRef) ([]Rule, error) {
	triggers, err := d.api.HostTriggers(ctx, h.HostID)
	if err != nil {
		return nil, err
	}

	var rules []Rule
	for _, t := range triggers {
		if Classify(t) != OriginHostAuthored {
			continue
		}
		base := Rule{
			RuleID:      t.TriggerID,
			HostID:      h.HostID,
			HostName:    h.Name,
			Description: t.Description,
			Expression:  t.Expression,
			Priority:    zabbix.PriorityName(t.Priority),
			Enabled:     t.Enabled(),
			Origin:      OriginHostAuthored,
		}
		if len(t.Items) == 0 {
			rules = append(rules, base)
			continue
		}
		for _, item := range t.Items {
			rule := base
			rule.ItemName = item.Name
			rule.ItemKey = item.Key
			rules = append(rules, rule)
		}
	}
	return rules, nil
}
