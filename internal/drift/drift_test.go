package drift

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zbxerr "github.com/zbxops/zbxtool/internal/errors"
	"github.com/zbxops/zbxtool/pkg/zabbix"
)

type fakeAPI struct {
	hostsByName  map[string]*zabbix.Host
	groupsByName map[string][]zabbix.HostGroup
	groupHosts   map[string][]zabbix.HostRef
	triggers     map[string][]zabbix.Trigger
	triggerErr   map[string]error
}

func (f *fakeAPI) HostByName(ctx context.Context, name string) (*zabbix.Host, error) {
	return f.hostsByName[name], nil
}

func (f *fakeAPI) HostGroupsByName(ctx context.Context, name string) ([]zabbix.HostGroup, error) {
	return f.groupsByName[name], nil
}

func (f *fakeAPI) HostsInGroup(ctx context.Context, groupID string, limit int) ([]zabbix.HostRef, error) {
	return f.groupHosts[groupID], nil
}

func (f *fakeAPI) HostTriggers(ctx context.Context, hostID string) ([]zabbix.Trigger, error) {
	if err := f.triggerErr[hostID]; err != nil {
		return nil, err
	}
	return f.triggers[hostID], nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		templateID string
		want       Origin
	}{
		{name: "empty linkage is host-authored", templateID: "", want: OriginHostAuthored},
		{name: "zero linkage is host-authored", templateID: "0", want: OriginHostAuthored},
		{name: "non-empty linkage is template-derived", templateID: "1042", want: OriginTemplate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(zabbix.Trigger{TriggerID: "t1", TemplateID: tc.templateID})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFindHostAuthoredByHost(t *testing.T) {
	api := &fakeAPI{
		hostsByName: map[string]*zabbix.Host{
			"web-01": {HostID: "h1", Name: "web-01"},
		},
		triggers: map[string][]zabbix.Trigger{
			"h1": {
				{TriggerID: "t1", Description: "disk full", TemplateID: "0", Priority: "4", Status: "0",
					Items: []zabbix.TriggerItem{{Name: "Free disk space", Key: "vfs.fs.size"}}},
				{TriggerID: "t2", Description: "inherited", TemplateID: "1042"},
				{TriggerID: "t3", Description: "no items", TemplateID: "", Status: "1"},
			},
		},
	}

	rules, err := New(api).FindHostAuthored(context.Background(), Scope{HostName: "web-01"})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "t1", rules[0].RuleID)
	assert.Equal(t, "web-01", rules[0].HostName)
	assert.Equal(t, "high", rules[0].Priority)
	assert.True(t, rules[0].Enabled)
	assert.Equal(t, "vfs.fs.size", rules[0].ItemKey)
	assert.Equal(t, OriginHostAuthored, rules[0].Origin)

	assert.Equal(t, "t3", rules[1].RuleID)
	assert.Empty(t, rules[1].ItemKey)
	assert.False(t, rules[1].Enabled)
}

func TestFindHostAuthoredByGroupOrdering(t *testing.T) {
	api := &fakeAPI{
		groupsByName: map[string][]zabbix.HostGroup{
			"Web": {{GroupID: "g1", Name: "Web"}},
		},
		groupHosts: map[string][]zabbix.HostRef{
			"g1": {{HostID: "h1", Name: "web-01"}, {HostID: "h2", Name: "web-02"}},
		},
		triggers: map[string][]zabbix.Trigger{
			"h1": {{TriggerID: "t1", TemplateID: ""}, {TriggerID: "t2", TemplateID: ""}},
			"h2": {{TriggerID: "t3", TemplateID: ""}},
		},
	}

	rules, err := New(api).FindHostAuthored(context.Background(), Scope{GroupName: "Web"})
	require.NoError(t, err)
	require.Len(t, rules, 3)
	// Host-then-insertion order.
	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{rules[0].RuleID, rules[1].RuleID, rules[2].RuleID})
	assert.Equal(t, "h2", rules[2].HostID)
}

func TestFindHostAuthoredSkipsFailedHost(t *testing.T) {
	api := &fakeAPI{
		groupsByName: map[string][]zabbix.HostGroup{
			"Web": {{GroupID: "g1", Name: "Web"}},
		},
		groupHosts: map[string][]zabbix.HostRef{
			"g1": {{HostID: "h1", Name: "web-01"}, {HostID: "h2", Name: "web-02"}},
		},
		triggers: map[string][]zabbix.Trigger{
			"h2": {{TriggerID: "t3", TemplateID: "0"}},
		},
		triggerErr: map[string]error{"h1": fmt.Errorf("simulated remote error")},
	}

	rules, err := New(api).FindHostAuthored(context.Background(), Scope{GroupName: "Web"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "t3", rules[0].RuleID)
}

func TestFindHostAuthoredUnknownScope(t *testing.T) {
	api := &fakeAPI{}

	_, err := New(api).FindHostAuthored(context.Background(), Scope{HostName: "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, zbxerr.ErrHostNotFound)

	_, err = New(api).FindHostAuthored(context.Background(), Scope{GroupName: "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, zbxerr.ErrGroupNotFound)

	_, err = New(api).FindHostAuthored(context.Background(), Scope{})
	assert.Error(t, err)
}
