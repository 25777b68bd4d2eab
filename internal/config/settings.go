// Package config loads runner settings from defaults, an optional config
// file, the environment and command-line flags, in that priority order.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every setting when read from the environment.
const EnvPrefix = "SIESTA_RUNNER"

// ConfigName is the config file base name searched in the job directory.
const ConfigName = "siestarunner"

// Settings is the resolved runner configuration.
type Settings struct {
	ProjectID       int           `mapstructure:"project_id"`
	Token           string        `mapstructure:"token"`
	BackendURL      string        `mapstructure:"backend_url"`
	RequestInterval time.Duration `mapstructure:"request_interval"`
	Notify          bool          `mapstructure:"notify"`

	WorkDir       string      `mapstructure:"workdir"`
	LogFile       string      `mapstructure:"log_file"`
	Label         string      `mapstructure:"label"`
	SiestaCommand string      `mapstructure:"siesta_command"`
	PassEnv       []string    `mapstructure:"pass_env"`
	PseudoPath    string      `mapstructure:"pseudo_path"`
	ProjectType   ProjectType `mapstructure:"project_type"`
	Vacuum        float64     `mapstructure:"vacuum"`

	StateDir    string `mapstructure:"state_dir"`
	Cache       bool   `mapstructure:"cache"`
	CacheDir    string `mapstructure:"cache_dir"`
	Parallelism int    `mapstructure:"parallelism"`
	Debug       bool   `mapstructure:"debug"`
}

// Defaults mirrors the values the backend expects when nothing is set.
func Defaults() map[string]any {
	return map[string]any{
		"backend_url":      "https://back.compmat.es",
		"request_interval": 10 * time.Second,
		"notify":           true,
		"workdir":          ".",
		"log_file":         "runner.log",
		"label":            "siesta",
		"siesta_command":   "siesta < PREFIX.fdf > PREFIX.out",
		"pass_env":         []string{"PATH", "HOME", "LD_LIBRARY_PATH", "OMP_NUM_THREADS", "OMPI_*", "SLURM_*"},
		"project_type":     string(ProjectTypeSinglePoint),
		"vacuum":           8.0,
		"state_dir":        ".siestarunner",
		"cache":            false,
		"cache_dir":        "",
		"parallelism":      4,
		"debug":            false,
	}
}

// legacyEnv lists unprefixed variables honoured for compatibility with the
// job scripts the backend already generates.
var legacyEnv = map[string][]string{
	"project_id":     {"PROJECT_ID"},
	"token":          {"TOKEN"},
	"backend_url":    {"BACKEND_URL"},
	"siesta_command": {"ASE_SIESTA_COMMAND"},
	"pseudo_path":    {"SIESTA_PP_PATH"},
}

// InitializeViper returns a viper instance with defaults and environment
// bindings registered.
func InitializeViper() *viper.Viper {
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(key)
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")

	return v
}

// Load resolves settings. Flags in fs are bound by name, with dashes mapped
// to underscores ("--request-interval" sets request_interval). configFile
// may be empty, in which case siestarunner.yaml is looked up in the job
// directory and its absence is not an error.
func Load(fs *pflag.FlagSet, configFile string) (*Settings, error) {
	v := InitializeViper()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := Defaults()[key]; !known && legacyEnv[key] == nil {
				return
			}
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = errors.Join(bindErr, fmt.Errorf("bind flag %q: %w", f.Name, err))
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.AddConfigPath(v.GetString("workdir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var s Settings
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&s, decodeHook); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	if err := s.normalize(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Settings) normalize() error {
	if s.WorkDir == "" {
		s.WorkDir = "."
	}
	abs, err := filepath.Abs(s.WorkDir)
	if err != nil {
		return fmt.Errorf("resolve workdir: %w", err)
	}
	s.WorkDir = filepath.Clean(abs)

	s.BackendURL = strings.TrimRight(s.BackendURL, "/")
	if s.ProjectType == "" {
		s.ProjectType = ProjectTypeSinglePoint
	}
	return nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	var errs []error
	if s.RequestInterval <= 0 {
		errs = append(errs, fmt.Errorf("request_interval must be positive (got %s)", s.RequestInterval))
	}
	if strings.TrimSpace(s.SiestaCommand) == "" {
		errs = append(errs, errors.New("siesta_command is required"))
	}
	if strings.TrimSpace(s.Label) == "" || strings.ContainsAny(s.Label, `/\ `) {
		errs = append(errs, fmt.Errorf("label %q must be a non-empty file name", s.Label))
	}
	if _, err := ParseProjectType(string(s.ProjectType)); err != nil {
		errs = append(errs, err)
	}
	if s.Vacuum < 0 {
		errs = append(errs, errors.New("vacuum must not be negative"))
	}
	if s.Parallelism < 1 {
		errs = append(errs, errors.New("parallelism must be at least 1"))
	}
	if s.NotificationsEnabled() {
		if s.ProjectID <= 0 {
			errs = append(errs, errors.New("project_id is required when notifications are enabled"))
		}
		if !strings.HasPrefix(s.BackendURL, "http://") && !strings.HasPrefix(s.BackendURL, "https://") {
			errs = append(errs, fmt.Errorf("backend_url %q must be an http(s) URL", s.BackendURL))
		}
	}
	return errors.Join(errs...)
}

// NotificationsEnabled reports whether status updates are sent to the
// backend. They require a token.
func (s *Settings) NotificationsEnabled() bool {
	return s.Notify && strings.TrimSpace(s.Token) != ""
}

// Command returns the SIESTA command with PREFIX replaced by the label.
func (s *Settings) Command() string {
	return strings.ReplaceAll(s.SiestaCommand, "PREFIX", s.Label)
}

// Path resolves name inside the job directory.
func (s *Settings) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.WorkDir, name)
}

// LabelPath resolves a label-derived SIESTA output inside the job directory.
func (s *Settings) LabelPath(ext string) string {
	return s.Path(LabelFile(s.Label, ext))
}

// ResolvedCacheDir returns the cache directory, defaulting to a folder under
// the state directory.
func (s *Settings) ResolvedCacheDir() string {
	if s.CacheDir != "" {
		return s.Path(s.CacheDir)
	}
	return filepath.Join(s.Path(s.StateDir), "cache")
}
