package zabbix

// HostGroup is a host group as returned by hostgroup.get.
type HostGroup struct {
	GroupID string    `json:"groupid"`
	Name    string    `json:"name"`
	Hosts   []HostRef `json:"hosts,omitempty"`
}

// HostRef identifies a host by its stable ID and display name.
type HostRef struct {
	HostID string `json:"hostid"`
	Name   string `json:"name,omitempty"`
}

// Host is a host with its group memberships and linked templates expanded.
type Host struct {
	HostID    string      `json:"hostid"`
	Name      string      `json:"name"`
	Groups    []HostGroup `json:"groups,omitempty"`
	Templates []Template  `json:"parentTemplates,omitempty"`
}

// Template is a monitoring template reference.
type Template struct {
	TemplateID string `json:"templateid"`
	Name       string `json:"name"`
}

// TriggerItem is a monitored item referenced by a trigger expression.
type TriggerItem struct {
	ItemID string `json:"itemid"`
	Name   string `json:"name"`
	Key    string `json:"key_"`
}

// Trigger is an alerting rule attached to a host. TemplateID carries the
// originating-template linkage: empty or "0" means the trigger was authored
// directly on the host rather than inherited from a template.
type Trigger struct {
	TriggerID   string        `json:"triggerid"`
	Description string        `json:"description"`
	Expression  string        `json:"expression"`
	Priority    string        `json:"priority"`
	Status      string        `json:"status"`
	TemplateID  string        `json:"templateid"`
	Items       []TriggerItem `json:"items,omitempty"`
}

// Enabled reports whether the trigger is active. Zabbix encodes status as
// "0" for enabled and "1" for disabled.
func (t Trigger) Enabled() bool {
	return t.Status == "0"
}

var priorityNames = map[string]string{
	"0": "not classified",
	"1": "information",
	"2": "warning",
	"3": "average",
	"4": "high",
	"5": "disaster",
}

// PriorityName translates a numeric trigger priority into its display name.
func PriorityName(priority string) string {
	if name, ok := priorityNames[priority]; ok {
		return name
	}
	return "unknown"
}
