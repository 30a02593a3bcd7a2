package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// StarterFileName is the supervisor config file.
const StarterFileName = "starter-config.json"

// AccountDB carries the connection parameters of the game server's account
// database (the one holding SRP salts and verifiers).
type AccountDB struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// StarterPaths locates the managed service binaries and their logs.
type StarterPaths struct {
	// AcoreRoot is the game server source checkout; enum extraction reads
	// C++ headers from it.
	AcoreRoot string `json:"acoreRoot"`
	AuthBin   string `json:"authBin"`
	WorldBin  string `json:"worldBin"`
	ArmoryBin string `json:"armoryBin"`
	LogsDir   string `json:"logsDir"`
	// ProcessPatterns overrides the substring matched against running
	// command lines per service; the default is the service name.
	ProcessPatterns map[string]string `json:"processPatterns,omitempty"`
}

// Security holds the supervisor's authorization policy.
type Security struct {
	// AdminMinLevel is the minimum gmlevel a logged-in account needs for
	// lifecycle operations.
	AdminMinLevel int `json:"adminMinLevel"`
}

// Starter is the parsed supervisor configuration.
type Starter struct {
	Root     string       `json:"-"`
	DB       AccountDB    `json:"db"`
	Paths    StarterPaths `json:"paths"`
	Security Security     `json:"security"`
}

// LoadStarter reads starter-config.json at path. Unlike the editor config, a
// missing file is an error: running a supervisor against guessed database
// credentials helps no one.
func LoadStarter(path string) (*Starter, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("starter config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.user", "acore")
	v.SetDefault("db.database", "acore_auth")
	v.SetDefault("security.adminMinLevel", 3)
	v.SetEnvPrefix("SDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	s := &Starter{
		Root: filepath.Dir(path),
		DB: AccountDB{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Database: v.GetString("db.database"),
		},
		Paths: StarterPaths{
			AcoreRoot:       v.GetString("paths.acoreRoot"),
			AuthBin:         v.GetString("paths.authBin"),
			WorldBin:        v.GetString("paths.worldBin"),
			ArmoryBin:       v.GetString("paths.armoryBin"),
			LogsDir:         v.GetString("paths.logsDir"),
			ProcessPatterns: v.GetStringMapString("paths.processPatterns"),
		},
		Security: Security{
			AdminMinLevel: v.GetInt("security.adminMinLevel"),
		},
	}
	if s.Paths.LogsDir == "" {
		s.Paths.LogsDir = filepath.Join(s.Root, "logs")
	}
	return s, nil
}

// AccountDSN builds the go-sql-driver DSN for the account database.
func (s *Starter) AccountDSN() string {
	return DSN(s.DB.User, s.DB.Password, s.DB.Host, s.DB.Port, s.DB.Database)
}

// Sanitized returns a copy safe to hand to HTTP clients: credentials blanked,
// everything else intact.
func (s *Starter) Sanitized() *Starter {
	out := *s
	out.DB.Password = ""
	out.DB.User = ""
	return &out
}
