// Package config loads the two repository-local configuration files:
// config.json for the editor (directory layout, active sources) and
// starter-config.json for the supervisor (account database, service
// binaries, admin policy).
//
// Each file is read through its own viper instance so the editor and the
// supervisor can live in one process without key collisions. Environment
// variables prefixed SDB_ override file values (SDB_SETTINGS_ACTIVEDBCSOURCE,
// SDB_DB_PASSWORD, ...).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the editor config file, looked up in the working directory
// unless an explicit path is given.
const FileName = "config.json"

// SourcePaths locates one data source's directories, relative to public/.
type SourcePaths struct {
	DBC   string `json:"dbc"`
	Icons string `json:"icons"`
}

// Paths holds the two selectable sources: base is the synced game-server
// snapshot, custom an operator-maintained alternative.
type Paths struct {
	Base   SourcePaths `json:"base"`
	Custom SourcePaths `json:"custom"`
}

// Settings are the operator-tunable switches.
type Settings struct {
	// ActiveDBCSource and ActiveIconSource select base or custom as the
	// read-only lower layer.
	ActiveDBCSource  string `json:"activeDBCSource"`
	ActiveIconSource string `json:"activeIconSource"`
	// AllowBaseModification permits writes into the base tree. Off by
	// default; the export tree is the write side.
	AllowBaseModification bool `json:"allowBaseModification"`
	Initialized           bool `json:"initialized"`
}

// MirrorDB carries the connection parameters of the auxiliary SQL database
// hosting the live spell mirror and its reference tables.
type MirrorDB struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// TalentPaths locates the talent deployment inputs and outputs. Config is
// the talent-config.json to read; AIODir and RuntimeDir both receive the
// generated Lua (the addon source tree and the live lua_scripts directory
// the worldserver loads).
type TalentPaths struct {
	Config     string `json:"config"`
	AIODir     string `json:"aioDir"`
	RuntimeDir string `json:"runtimeDir"`
}

// Config is the parsed editor configuration. Root is the directory the
// config file lives in; every relative path resolves against it.
type Config struct {
	Root     string      `json:"-"`
	Paths    Paths       `json:"paths"`
	Settings Settings    `json:"settings"`
	DB       MirrorDB    `json:"db"`
	Talents  TalentPaths `json:"talents"`
}

// Load reads the editor config at path. A missing file is not an error: the
// defaults describe a fresh checkout and Save can materialize them later.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setEditorDefaults(v)
	v.SetEnvPrefix("SDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Root: filepath.Dir(path),
		Paths: Paths{
			Base: SourcePaths{
				DBC:   v.GetString("paths.base.dbc"),
				Icons: v.GetString("paths.base.icons"),
			},
			Custom: SourcePaths{
				DBC:   v.GetString("paths.custom.dbc"),
				Icons: v.GetString("paths.custom.icons"),
			},
		},
		Settings: Settings{
			ActiveDBCSource:       v.GetString("settings.activeDBCSource"),
			ActiveIconSource:      v.GetString("settings.activeIconSource"),
			AllowBaseModification: v.GetBool("settings.allowBaseModification"),
			Initialized:           v.GetBool("settings.initialized"),
		},
		DB: MirrorDB{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Database: v.GetString("db.database"),
		},
		Talents: TalentPaths{
			Config:     v.GetString("talents.config"),
			AIODir:     v.GetString("talents.aioDir"),
			RuntimeDir: v.GetString("talents.runtimeDir"),
		},
	}
	return cfg, cfg.validate()
}

func setEditorDefaults(v *viper.Viper) {
	v.SetDefault("paths.base.dbc", "dbc")
	v.SetDefault("paths.base.icons", "Icons")
	v.SetDefault("paths.custom.dbc", "custom-dbc")
	v.SetDefault("paths.custom.icons", "custom-icon")
	v.SetDefault("settings.activeDBCSource", "base")
	v.SetDefault("settings.activeIconSource", "base")
	v.SetDefault("settings.allowBaseModification", false)
	v.SetDefault("settings.initialized", false)
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.user", "root")
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", "sdbeditor")
	v.SetDefault("talents.config", "talent-config.json")
	v.SetDefault("talents.aioDir", "aio")
	v.SetDefault("talents.runtimeDir", filepath.Join("lua_scripts", "AIO"))
}

func (c *Config) validate() error {
	switch c.Settings.ActiveDBCSource {
	case "base", "custom":
	default:
		return fmt.Errorf("settings.activeDBCSource: %q is invalid (valid values: base, custom)", c.Settings.ActiveDBCSource)
	}
	switch c.Settings.ActiveIconSource {
	case "base", "custom":
	default:
		return fmt.Errorf("settings.activeIconSource: %q is invalid (valid values: base, custom)", c.Settings.ActiveIconSource)
	}
	return nil
}

// Save writes the config back as indented JSON next to where it was loaded
// from. Secrets stay in the file they came from; Save never prints them.
func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.Root, FileName), data, 0600)
}

// activeSource picks the DBC source the settings select.
func (c *Config) activeSource() SourcePaths {
	if c.Settings.ActiveDBCSource == "custom" {
		return c.Paths.Custom
	}
	return c.Paths.Base
}

func (c *Config) activeIconSource() SourcePaths {
	if c.Settings.ActiveIconSource == "custom" {
		return c.Paths.Custom
	}
	return c.Paths.Base
}

// BaseDBCDir is the read-only DBC directory of the active source.
func (c *Config) BaseDBCDir() string {
	return filepath.Join(c.Root, "public", c.activeSource().DBC)
}

// BaseIconDir is the read-only BLP icon directory of the active source.
func (c *Config) BaseIconDir() string {
	return filepath.Join(c.Root, "public", c.activeIconSource().Icons)
}

// ExportDBCDir is the write-side DBC tree, laid out the way the game client
// expects so it can be packed into a patch verbatim.
func (c *Config) ExportDBCDir() string {
	return filepath.Join(c.Root, "export", "DBFilesClient")
}

// ExportIconDir is the write-side icon tree.
func (c *Config) ExportIconDir() string {
	return filepath.Join(c.Root, "export", "Interface", "Icons")
}

// ExportLockPath is the cross-process lock guarding export tree writes. It
// sits directly under export/ so the packable subtrees stay clean.
func (c *Config) ExportLockPath() string {
	return filepath.Join(c.Root, "export", ".lock")
}

// BackupsDir holds the dated pre-edit snapshots.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.Root, "backups")
}

// CacheDir holds the derived index JSON files and the sprites directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Root, "cache")
}

// ThumbnailDir holds the generated 64x64 PNG thumbnails.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.Root, "thumbnails")
}

// LogDir holds the dated application logs.
func (c *Config) LogDir() string {
	return filepath.Join(c.Root, "logs")
}

// TalentConfigPath is the talent-config.json location.
func (c *Config) TalentConfigPath() string {
	return c.resolve(c.Talents.Config)
}

// TalentDeployDirs are the two directories every generated talent Lua file
// is written to, in order: the addon source tree, then the runtime tree.
func (c *Config) TalentDeployDirs() []string {
	return []string{c.resolve(c.Talents.AIODir), c.resolve(c.Talents.RuntimeDir)}
}

// resolve roots a relative path at the config directory; absolute paths
// pass through.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// MirrorDSN builds the go-sql-driver DSN for the spell mirror database. The
// 1.5s dial timeout keeps a down SQL server from stalling edit requests.
func (c *Config) MirrorDSN() string {
	return DSN(c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Database)
}

// DSN formats a mysql connection string with the connect timeout every
// caller in this repo wants.
func DSN(user, password, host string, port int, database string) string {
	cred := user
	if password != "" {
		cred += ":" + password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true&timeout=1500ms", cred, host, port, database)
}
