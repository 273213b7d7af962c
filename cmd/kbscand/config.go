package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"k8s.io/klog/v2"

	"github.com/openkbd/kbscand/internal/ime"
)

const (
	backendMemory = "memory"
	backendSqlite = "sqlite"

	defaultSettingsFile = "kbscand/settings.yaml"
	defaultLayoutDB     = "kbscand/layouts.db"
)

type configSource interface {
	String() string
	open() (io.Reader, func() error, error)
}

type fileConfigSource struct {
	path string
}

func (fcs *fileConfigSource) open() (io.Reader, func() error, error) {
	file, err := os.Open(fcs.path)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}

func (fcs *fileConfigSource) String() string {
	return "file:" + fcs.path
}

type envConfigSource struct {
	variable string
}

func (ecs *envConfigSource) open() (io.Reader, func() error, error) {
	data := os.Getenv(ecs.variable)
	if data == "" {
		return nil, nil, fmt.Errorf("config: environment variable %s is not set", ecs.variable)
	}
	return strings.NewReader(data), func() error { return nil }, nil
}

func (ecs *envConfigSource) String() string {
	return "env:" + ecs.variable
}

type stdinConfigSource struct{}

func (scs *stdinConfigSource) open() (io.Reader, func() error, error) {
	return os.Stdin, func() error { return nil }, nil
}

func (scs *stdinConfigSource) String() string {
	return "stdin"
}

type ConfigFlag struct {
	configSource
}

func (cf *ConfigFlag) Set(value string) error {
	if strings.HasPrefix(value, "file:") {
		cf.configSource = &fileConfigSource{path: strings.TrimPrefix(value, "file:")}
	} else if strings.HasPrefix(value, "env:") {
		cf.configSource = &envConfigSource{variable: strings.TrimPrefix(value, "env:")}
	} else if strings.HasPrefix(value, "stdin") {
		cf.configSource = &stdinConfigSource{}
	} else {
		return fmt.Errorf("invalid config source: %s", value)
	}

	return nil
}

func (cf *ConfigFlag) String() string {
	if cf.configSource == nil {
		return ""
	}
	return cf.configSource.String()
}

type FlagValues struct {
	Config ConfigFlag

	config *Config
}

func initFlags() FlagValues {
	values := FlagValues{}
	flags := flag.NewFlagSet("kbscand", flag.ExitOnError)
	klog.InitFlags(flags)
	flags.Var(&values.Config, "config", `configuration source (in form "file:<path>", "env:<ENV_VARIABLE>" or "stdin")`)
	flags.Parse(os.Args[1:])
	if values.Config.configSource == nil {
		flags.Output().Write([]byte("config flag is required\n"))
		flags.Usage()
		os.Exit(2)
	}
	configReader, configCloser, err := values.Config.open()
	if err != nil {
		klog.Fatalf("failed to open --config %q: %v", values.Config.String(), err)
	}
	defer configCloser()

	config, err := parseConfig(configReader)
	if err != nil {
		klog.Fatalf("failed to parse --config %q: %v", values.Config.String(), err)
	}

	values.config = config

	return values
}

type SubtypeConfig struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label"`
	Mode     string `yaml:"mode"`
	Enabled  bool   `yaml:"enabled"`
	Implicit bool   `yaml:"implicit,omitempty"`
}

func (sc *SubtypeConfig) validate() error {
	if sc.ID == "" {
		return fmt.Errorf(".id: must be set")
	}
	if sc.Mode == "" {
		return fmt.Errorf(".mode: must be set")
	}
	return nil
}

type MethodConfig struct {
	ID       string          `yaml:"id"`
	Label    string          `yaml:"label"`
	Enabled  bool            `yaml:"enabled"`
	Subtypes []SubtypeConfig `yaml:"subtypes"`
}

func (mc *MethodConfig) validate() error {
	var errs error
	if mc.ID == "" {
		errs = errors.Join(errs, fmt.Errorf(".id: must be set"))
	}
	seen := make(map[string]bool)
	for i := range mc.Subtypes {
		if err := mc.Subtypes[i].validate(); err != nil {
			errs = errors.Join(errs, fmt.Errorf(".subtypes[%d]%w", i, err))
		}
		if seen[mc.Subtypes[i].ID] {
			errs = errors.Join(errs, fmt.Errorf(".subtypes[%d].id: %q duplicated", i, mc.Subtypes[i].ID))
		}
		seen[mc.Subtypes[i].ID] = true
	}
	return errs
}

type LayoutStoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

func (lsc *LayoutStoreConfig) validate() error {
	switch lsc.Backend {
	case "":
		lsc.Backend = backendMemory
	case backendMemory, backendSqlite:
	default:
		return fmt.Errorf(".backend: must be %q or %q", backendMemory, backendSqlite)
	}
	return nil
}

func (lsc *LayoutStoreConfig) dbPath() (string, error) {
	if lsc.Path != "" {
		return lsc.Path, nil
	}
	return xdg.DataFile(defaultLayoutDB)
}

type Config struct {
	Listen          string            `yaml:"listen"`
	SettingsFile    string            `yaml:"settingsFile,omitempty"`
	LayoutStore     LayoutStoreConfig `yaml:"layoutStore"`
	ShortcutsHelper []string          `yaml:"shortcutsHelper,omitempty"`
	InputMethods    []MethodConfig    `yaml:"inputMethods"`
}

func (c *Config) validate() error {
	var errs error
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if err := c.LayoutStore.validate(); err != nil {
		errs = errors.Join(errs, fmt.Errorf(".layoutStore%w", err))
	}
	seen := make(map[string]bool)
	for i := range c.InputMethods {
		if err := c.InputMethods[i].validate(); err != nil {
			errs = errors.Join(errs, fmt.Errorf(".inputMethods[%d]%w", i, err))
		}
		if seen[c.InputMethods[i].ID] {
			errs = errors.Join(errs, fmt.Errorf(".inputMethods[%d].id: %q duplicated", i, c.InputMethods[i].ID))
		}
		seen[c.InputMethods[i].ID] = true
	}
	return errs
}

func (c *Config) settingsPath() (string, error) {
	if c.SettingsFile != "" {
		return c.SettingsFile, nil
	}
	return xdg.ConfigFile(defaultSettingsFile)
}

// enabledMethods converts the configured methods into the registry model,
// dropping disabled ones and preserving declaration order.
func (c *Config) enabledMethods() []ime.Method {
	var methods []ime.Method
	for _, mc := range c.InputMethods {
		if !mc.Enabled {
			continue
		}
		method := ime.Method{
			ID:    ime.MethodID(mc.ID),
			Label: mc.Label,
		}
		for _, sc := range mc.Subtypes {
			method.Subtypes = append(method.Subtypes, ime.Subtype{
				ID:       ime.SubtypeID(sc.ID),
				Label:    sc.Label,
				Mode:     sc.Mode,
				Enabled:  sc.Enabled,
				Implicit: sc.Implicit,
			})
		}
		methods = append(methods, method)
	}
	return methods
}

func parseConfig(reader io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(reader)
	config := &Config{}
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}
