package talent

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/logging"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestDeploy(t *testing.T) {
	cfg := newTestConfig(t)
	talentJSON := `{
		"classes": {
			"1": {
				"className": "Warrior",
				"specs": [
					{"name": "Arms", "talents": [{"name": "Mortal Strike", "row": 0, "col": 0, "ranks": [12294]}]},
					{"name": "Fury", "talents": [{"name": "Bloodthirst", "row": 0, "col": 1, "ranks": [23881]}]}
				]
			}
		}
	}`
	if err := os.WriteFile(cfg.TalentConfigPath(), []byte(talentJSON), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	d := NewDeployer(cfg, logging.Discard())
	res, err := d.Deploy()
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if res.Classes != 1 || res.Tabs != 2 || res.Talents != 2 {
		t.Fatalf("res = %+v", res)
	}
	if len(res.Wrote) != 2 {
		t.Fatalf("wrote = %v, want both deploy dirs", res.Wrote)
	}

	var contents [][]byte
	for _, path := range res.Wrote {
		if filepath.Base(path) != TreesFileName {
			t.Fatalf("wrote %q, want %q", filepath.Base(path), TreesFileName)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		contents = append(contents, data)
	}
	if !bytes.Equal(contents[0], contents[1]) {
		t.Fatal("the two deployed copies differ")
	}

	// Each spec tab carries exactly its one talent.
	out := string(contents[0])
	if got := strings.Count(out, "id = "); got != 2 {
		t.Fatalf("emitted %d talents, want 2:\n%s", got, out)
	}

	// Redeploying an unchanged config is byte-identical.
	res2, err := d.Deploy()
	if err != nil {
		t.Fatalf("second Deploy: %v", err)
	}
	again, err := os.ReadFile(res2.Wrote[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(contents[0], again) {
		t.Fatal("second deploy changed bytes")
	}
}

func TestDeployMissingConfig(t *testing.T) {
	cfg := newTestConfig(t)
	if _, err := NewDeployer(cfg, logging.Discard()).Deploy(); err == nil {
		t.Fatal("Deploy succeeded without talent-config.json")
	}
}
