package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zbxops/zbxtool/internal/templates"
)

func captureOutput(f func()) string {
	oldStdout := os.Stdout
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stdout = w
	os.Stderr = w

	f()

	w.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func resetReplaceFlags() {
	replaceHostName = ""
	replaceHostID = ""
	replaceGroup = ""
	replaceOld = ""
	replaceNew = ""
	replaceDrift = false
}

func TestVersionCmd(t *testing.T) {
	oldVersion := Version
	oldBuildTime := BuildTime
	oldGitCommit := GitCommit
	defer func() {
		Version = oldVersion
		BuildTime = oldBuildTime
		GitCommit = oldGitCommit
	}()

	Version = "1.2.3"
	BuildTime = "2023-01-01"
	GitCommit = "abcdef"

	output := captureOutput(func() {
		rootCmd.SetArgs([]string{"version"})
		rootCmd.Execute()
	})

	assert.Contains(t, output, "zbxtool 1.2.3")
	assert.Contains(t, output, "Built: 2023-01-01")
	assert.Contains(t, output, "Commit: abcdef")

	BuildTime = "unknown"
	GitCommit = "unknown"
	output = captureOutput(func() {
		rootCmd.SetArgs([]string{"version"})
		rootCmd.Execute()
	})
	assert.Contains(t, output, "zbxtool 1.2.3")
	assert.NotContains(t, output, "Built:")
	assert.NotContains(t, output, "Commit:")
}

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"version", "backup", "reconcile", "migrate", "replace-template", "detect-drift", "delete-triggers"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "subcommand %q not registered", name)
	}
}

func TestReplaceScope(t *testing.T) {
	tests := []struct {
		name     string
		hostName string
		hostID   string
		group    string
		want     templates.Scope
		wantErr  bool
	}{
		{name: "host name", hostName: "web-01", want: templates.Scope{Kind: templates.ScopeHostName, Value: "web-01"}},
		{name: "host id", hostID: "10084", want: templates.Scope{Kind: templates.ScopeHostID, Value: "10084"}},
		{name: "group", group: "Linux servers", want: templates.Scope{Kind: templates.ScopeGroup, Value: "Linux servers"}},
		{name: "none set", wantErr: true},
		{name: "two set", hostName: "web-01", group: "Linux servers", wantErr: true},
		{name: "all set", hostName: "web-01", hostID: "10084", group: "Linux servers", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetReplaceFlags()
			replaceHostName = tt.hostName
			replaceHostID = tt.hostID
			replaceGroup = tt.group

			scope, err := replaceScope()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, scope)
		})
	}
	resetReplaceFlags()
}

func TestReplaceTemplateRequiresTemplateNames(t *testing.T) {
	resetReplaceFlags()
	defer resetReplaceFlags()
	replaceHostName = "web-01"

	err := replaceTemplateCmd.RunE(replaceTemplateCmd, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "--old and --new")
}

func TestReconcileRequiresExactlyOneSource(t *testing.T) {
	defer func() {
		reconcileSnapshotPath = ""
		reconcileLatest = false
	}()

	reconcileSnapshotPath = ""
	reconcileLatest = false
	err := reconcileCmd.RunE(reconcileCmd, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "--snapshot or --latest")

	reconcileSnapshotPath = "backup.json"
	reconcileLatest = true
	err = reconcileCmd.RunE(reconcileCmd, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "--snapshot or --latest")
}

func TestDetectDriftRequiresExactlyOneScope(t *testing.T) {
	defer func() {
		driftHostName = ""
		driftGroupName = ""
	}()

	driftHostName = ""
	driftGroupName = ""
	err := detectDriftCmd.RunE(detectDriftCmd, nil)
	assert.Error(t, err)

	driftHostName = "web-01"
	driftGroupName = "Linux servers"
	err = detectDriftCmd.RunE(detectDriftCmd, nil)
	assert.Error(t, err)
}
