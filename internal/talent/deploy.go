package talent

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// Deployer runs the JSON→Lua pipeline.
type Deployer struct {
	cfg *config.Config
	log *logrus.Entry
}

// NewDeployer wires a deployer over the editor config.
func NewDeployer(cfg *config.Config, log *logrus.Entry) *Deployer {
	if log == nil {
		log = logging.Discard()
	}
	return &Deployer{cfg: cfg, log: log}
}

// DeployResult reports what a deploy produced.
type DeployResult struct {
	File    string   `json:"file"`
	Classes int      `json:"classes"`
	Tabs    int      `json:"tabs"`
	Talents int      `json:"talents"`
	Bytes   int      `json:"bytes"`
	Wrote   []string `json:"wrote"`
}

// Deploy reads talent-config.json, emits the trees Lua and writes it to the
// addon source directory and the runtime directory. Both copies are written
// atomically and are byte-identical.
func (d *Deployer) Deploy() (*DeployResult, error) {
	trees, err := ParseConfig(d.cfg.TalentConfigPath())
	if err != nil {
		return nil, err
	}
	data := EmitTrees(trees)

	res := &DeployResult{File: TreesFileName, Classes: len(trees), Bytes: len(data)}
	for _, tree := range trees {
		res.Tabs += len(tree.Tabs)
		for _, tab := range tree.Tabs {
			res.Talents += len(tab.Talents)
			for _, hero := range tab.HeroTrees {
				res.Talents += len(hero.Talents)
			}
		}
	}

	wrote, err := writeBoth(d.cfg.TalentDeployDirs(), TreesFileName, data)
	res.Wrote = wrote
	if err != nil {
		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"classes": res.Classes,
		"tabs":    res.Tabs,
		"talents": res.Talents,
		"bytes":   res.Bytes,
	}).Info("deployed talent trees")
	return res, nil
}

// writeBoth writes data under every directory, creating them as needed. It
// stops at the first failure; the returned slice names what was written.
func writeBoth(dirs []string, name string, data []byte) ([]string, error) {
	wrote := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return wrote, fmt.Errorf("talent deploy: %w", err)
		}
		path := filepath.Join(dir, name)
		if err := wdbc.WriteFileAtomic(path, data, 0o644); err != nil {
			return wrote, fmt.Errorf("talent deploy: %w", err)
		}
		wrote = append(wrote, path)
	}
	return wrote, nil
}
