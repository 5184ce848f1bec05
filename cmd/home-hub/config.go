package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"home-hub/internal/assistant"
	"home-hub/internal/home"
)

const defaultExecTimeout = 10 * time.Second

// Config is the YAML file given as the first argument.
type Config struct {
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Home struct {
		SeedFile     string `yaml:"seed_file"`
		Acceleration int    `yaml:"acceleration"`
	} `yaml:"home"`
	Assistant struct {
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
		HomeDir string   `yaml:"home_dir"`
		Timeout duration `yaml:"timeout"`
	} `yaml:"assistant"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		Discovery   bool   `yaml:"discovery"`
	} `yaml:"mqtt"`
	Automation struct {
		ScriptsDir    string   `yaml:"scripts_dir"`
		ExecAllowlist []string `yaml:"exec_allowlist"`
		ExecTimeout   duration `yaml:"exec_timeout"`
	} `yaml:"automation"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// duration decodes Go duration strings such as "30s" or "2m".
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = duration(v)
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv lets secrets stay out of the config file. Variables follow
// HOMEHUB_<SECTION>_<KEY>.
func (c *Config) applyEnv(getenv func(string) string) {
	for name, field := range map[string]*string{
		"HOMEHUB_WEB_API_KEY":    &c.Web.APIKey,
		"HOMEHUB_STORE_PATH":     &c.Store.Path,
		"HOMEHUB_MQTT_BROKER":    &c.MQTT.Broker,
		"HOMEHUB_MQTT_USERNAME":  &c.MQTT.Username,
		"HOMEHUB_MQTT_PASSWORD":  &c.MQTT.Password,
		"HOMEHUB_ASSISTANT_HOME": &c.Assistant.HomeDir,
	} {
		if v := getenv(name); v != "" {
			*field = v
		}
	}
}

func (c *Config) applyDefaults() {
	setDefault(&c.Web.Listen, "127.0.0.1:3000")
	setDefault(&c.Store.Path, "home-hub.db")
	setDefault(&c.Home.Acceleration, home.DefaultAcceleration)
	setDefault(&c.Assistant.Timeout, duration(assistant.DefaultTimeout))
	setDefault(&c.MQTT.TopicPrefix, "home-hub")
	setDefault(&c.Automation.ScriptsDir, "scripts")
	setDefault(&c.Automation.ExecTimeout, duration(defaultExecTimeout))
	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "text")
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Home.Acceleration < 1 {
		errs = append(errs, fmt.Errorf("home.acceleration must be >= 1, got %d", c.Home.Acceleration))
	}
	if c.Assistant.Command != "" && !filepath.IsAbs(c.Assistant.Command) {
		errs = append(errs, errors.New("assistant.command must be an absolute path"))
	}
	if c.Assistant.Timeout < 0 {
		errs = append(errs, errors.New("assistant.timeout must be positive"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	for _, p := range c.Automation.ExecAllowlist {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Errorf("automation.exec_allowlist: %q is not an absolute path", p))
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
