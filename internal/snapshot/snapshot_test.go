package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zbxops/zbxtool/pkg/zabbix"
)

func TestParsePreservesFileOrder(t *testing.T) {
	in := `{
  "Zebra": {"groupid": "3", "hosts": []},
  "Alpha": {"groupid": "1", "hosts": [{"hostid": "h1", "name": "web-01"}]},
  "Mike": {"groupid": "2", "hosts": []}
}`
	snap, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 3, snap.Len())
	assert.Equal(t, "Zebra", snap.Groups[0].Name)
	assert.Equal(t, "Alpha", snap.Groups[1].Name)
	assert.Equal(t, "Mike", snap.Groups[2].Name)
	assert.Equal(t, "h1", snap.Groups[1].Hosts[0].HostID)
	assert.Equal(t, "web-01", snap.Groups[1].Hosts[0].Name)
}

func TestParseRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "missing groupid", in: `{"G1": {"hosts": []}}`},
		{name: "empty groupid", in: `{"G1": {"groupid": "", "hosts": []}}`},
		{name: "host without hostid", in: `{"G1": {"groupid": "1", "hosts": [{"name": "web-01"}]}}`},
		{name: "unknown field", in: `{"G1": {"groupid": "1", "hosts": [], "extra": true}}`},
		{name: "not an object", in: `["G1"]`},
		{name: "truncated", in: `{"G1": {"groupid": "1"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.in))
			assert.Error(t, err)
		})
	}
}

func TestParseDuplicateGroupIDLastEntryWins(t *testing.T) {
	in := `{
  "Old name": {"groupid": "7", "hosts": [{"hostid": "h1"}]},
  "Middle": {"groupid": "8", "hosts": []},
  "New name": {"groupid": "7", "hosts": [{"hostid": "h2"}]}
}`
	snap, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, "Middle", snap.Groups[0].Name)
	assert.Equal(t, "New name", snap.Groups[1].Name)
	assert.Equal(t, "h2", snap.Groups[1].Hosts[0].HostID)
}

type fakeExporter struct {
	groups []zabbix.HostGroup
	err    error
}

func (f *fakeExporter) AllHostGroupsWithHosts(ctx context.Context) ([]zabbix.HostGroup, error) {
	return f.groups, f.err
}

func TestCaptureSaveLoadRoundTrip(t *testing.T) {
	exporter := &fakeExporter{groups: []zabbix.HostGroup{
		{GroupID: "1", Name: "Web servers", Hosts: []zabbix.HostRef{{HostID: "h1", Name: "web-01"}}},
		{GroupID: "2", Name: "Databases"},
	}}

	snap, err := Capture(context.Background(), exporter)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	dir := t.TempDir()
	path, err := snap.Save(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "group_backup_"))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, "Web servers", loaded.Groups[0].Name)
	assert.Equal(t, "1", loaded.Groups[0].GroupID)
	assert.Equal(t, "web-01", loaded.Groups[0].Hosts[0].Name)
	assert.Equal(t, "Databases", loaded.Groups[1].Name)
	assert.Empty(t, loaded.Groups[1].Hosts)
}

func TestLatestPicksNewestBackup(t *testing.T) {
	dir := t.TempDir()

	older := filepath.Join(dir, "group_backup_20250101_000000.json")
	newer := filepath.Join(dir, "group_backup_20250201_000000.json")
	require.NoError(t, os.WriteFile(older, []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(newer, []byte("{}"), 0644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	got, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}

func TestLatestEmptyDir(t *testing.T) {
	_, err := Latest(t.TempDir())
	assert.Error(t, err)
}
