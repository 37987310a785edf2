// Package snapshot models a point-in-time host-group topology: which groups
// existed, what they were named, and which hosts belonged to them.
//
// A snapshot file is a JSON object keyed by the original group name:
//
//	{"Web servers": {"groupid": "12", "hosts": [{"hostid": "101", "name": "web-01"}]}}
//
// Group IDs are the join key for reconciliation; names are what gets
// restored. Entries keep file order so reconciliation runs are reproducible.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zbxops/zbxtool/pkg/zabbix"
)

const filePrefix = "group_backup_"

// GroupRecord is the recorded state of one host group. Records are created
// by a capture pass and read-only afterwards.
type GroupRecord struct {
	Name    string           `json:"-"`
	GroupID string           `json:"groupid"`
	Hosts   []zabbix.HostRef `json:"hosts"`
}

// Snapshot is an ordered set of group records keyed by original group name.
type Snapshot struct {
	Groups []GroupRecord
}

// Len returns the number of group records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Groups)
}

// Load reads and validates a snapshot file.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	snap, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return snap, nil
}

// Parse decodes a snapshot, preserving entry order and rejecting unknown or
// missing required fields rather than silently defaulting.
//
// When two entries share a group ID under different names the last entry
// wins; earlier entries are dropped with a warning.
func Parse(r io.Reader) (*Snapshot, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode: expected top-level object, got %v", tok)
	}

	snap := &Snapshot{}
	byID := make(map[string]int)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("decode: expected group name, got %v", keyTok)
		}

		var rec GroupRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("group %q: %w", name, err)
		}
		rec.Name = name

		if err := validate(rec); err != nil {
			return nil, err
		}

		if prev, seen := byID[rec.GroupID]; seen {
			log.Warn().
				Str("groupID", rec.GroupID).
				Str("kept", name).
				Str("dropped", snap.Groups[prev].Name).
				Msg("Duplicate group ID in snapshot, last entry wins")
			snap.Groups = append(snap.Groups[:prev], snap.Groups[prev+1:]...)
			for id, idx := range byID {
				if idx > prev {
					byID[id] = idx - 1
				}
			}
		}
		byID[rec.GroupID] = len(snap.Groups)
		snap.Groups = append(snap.Groups, rec)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return snap, nil
}

func validate(rec GroupRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("snapshot entry with empty group name")
	}
	if rec.GroupID == "" {
		return fmt.Errorf("group %q: missing groupid", rec.Name)
	}
	for i, h := range rec.Hosts {
		if h.HostID == "" {
			return fmt.Errorf("group %q: host %d missing hostid", rec.Name, i)
		}
	}
	return nil
}

// Capture exports the live topology into a new snapshot: every host group
// together with its current host membership.
func Capture(ctx context.Context, api Exporter) (*Snapshot, error) {
	groups, err := api.AllHostGroupsWithHosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture topology: %w", err)
	}

	snap := &Snapshot{Groups: make([]GroupRecord, 0, len(groups))}
	for _, g := range groups {
		hosts := g.Hosts
		if hosts == nil {
			hosts = []zabbix.HostRef{}
		}
		snap.Groups = append(snap.Groups, GroupRecord{
			Name:    g.Name,
			GroupID: g.GroupID,
			Hosts:   hosts,
		})
	}
	return snap, nil
}

// Exporter is the API surface Capture needs.
type Exporter interface {
	AllHostGroupsWithHosts(ctx context.Context) ([]zabbix.HostGroup, error)
}

// Encode writes the snapshot as indented JSON, preserving entry order.
func (s *Snapshot) Encode(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, rec := range s.Groups {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		key, err := json.Marshal(rec.Name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteString(": ")
		body, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		buf.Write(body)
	}
	if len(s.Groups) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// Save writes the snapshot into dir as a timestamped backup file and
// returns its path.
func (s *Snapshot) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s%s.json", filePrefix, time.Now().Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	if err := s.Encode(f); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// Latest returns the most recently modified backup file in dir.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*.json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no snapshot files in %s", dir)
	}

	var newest string
	var newestMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no readable snapshot files in %s", dir)
	}
	return newest, nil
}
