// Package config loads the run configuration for the integration queue
// manager. Values come from the environment (INTQUEUE_* variables), an
// optional .env file, and CLI flag overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envFile = ".env"

// HoldDateLayout is the only accepted hold date format.
const HoldDateLayout = "2006-01-02"

// Jira holds tracker connection settings.
type Jira struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Token    string `mapstructure:"token"`
	Project  string `mapstructure:"project"`

	// FlagField, PriorityField and MustFixField are the custom field ids
	// backing the "currently in integration" flag, the integration priority
	// rank and the must-fix version picker.
	FlagField     string `mapstructure:"flag_field"`
	PriorityField string `mapstructure:"priority_field"`
	MustFixField  string `mapstructure:"must_fix_field"`

	// Transition is the privileged self-transition used for promotion; it
	// exposes the otherwise screen-hidden integration fields.
	Transition string `mapstructure:"transition"`
}

// Queue holds the admission policy knobs.
type Queue struct {
	HoldDate   string `mapstructure:"hold_date"`
	CurrentMin int    `mapstructure:"current_min"`
	MoveMax    int    `mapstructure:"move_max"`
}

// Run holds per-run output settings.
type Run struct {
	AuditPath  string `mapstructure:"audit_path"`
	ReportPath string `mapstructure:"report_path"`
	DryRun     bool   `mapstructure:"dry_run"`
	FailFast   bool   `mapstructure:"fail_fast"`
}

// Logging holds logger settings.
type Logging struct {
	Level string `mapstructure:"level"`
}

// Config is the full validated configuration.
type Config struct {
	Jira    Jira    `mapstructure:"jira"`
	Queue   Queue   `mapstructure:"queue"`
	Run     Run     `mapstructure:"run"`
	Logging Logging `mapstructure:"logging"`

	// holdDate is the parsed form of Queue.HoldDate, set by Validate.
	holdDate time.Time
}

// Load reads configuration from environment using viper with typed defaults
// and strict validation. Any malformed required value is a fatal startup
// error; nothing talks to the tracker before Load succeeds.
func Load() (*Config, error) {
	v := viper.New()
	if envMap, err := godotenv.Read(envFile); err == nil {
		for key, val := range envMap {
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}

	v.SetEnvPrefix("INTQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")

	v.SetDefault("jira.flag_field", "customfield_10110")
	v.SetDefault("jira.priority_field", "customfield_12210")
	v.SetDefault("jira.must_fix_field", "customfield_10118")
	v.SetDefault("jira.transition", "CI global self-transition")

	v.SetDefault("queue.current_min", 6)
	v.SetDefault("queue.move_max", 3)

	v.SetDefault("run.audit_path", "intqueue_audit.log")
	v.SetDefault("run.report_path", "intqueue_results.csv")
	v.SetDefault("run.dry_run", false)
	v.SetDefault("run.fail_fast", false)
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"jira.url",
		"jira.username",
		"jira.token",
		"jira.project",
		"jira.flag_field",
		"jira.priority_field",
		"jira.must_fix_field",
		"jira.transition",
		"queue.hold_date",
		"queue.current_min",
		"queue.move_max",
		"run.audit_path",
		"run.report_path",
		"run.dry_run",
		"run.fail_fast",
		"logging.level",
	}

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Jira.URL == "" {
		return fmt.Errorf("jira.url is required (INTQUEUE_JIRA_URL)")
	}
	if c.Jira.Token == "" {
		return fmt.Errorf("jira.token is required (INTQUEUE_JIRA_TOKEN)")
	}
	if c.Jira.Project == "" {
		return fmt.Errorf("jira.project is required (INTQUEUE_JIRA_PROJECT)")
	}
	if c.Queue.HoldDate == "" {
		return fmt.Errorf("queue.hold_date is required (INTQUEUE_QUEUE_HOLD_DATE)")
	}
	parsed, err := time.Parse(HoldDateLayout, c.Queue.HoldDate)
	if err != nil {
		return fmt.Errorf("queue.hold_date %q: must match %s", c.Queue.HoldDate, HoldDateLayout)
	}
	c.holdDate = parsed
	if c.Queue.CurrentMin <= 0 {
		return fmt.Errorf("queue.current_min must be positive, got %d", c.Queue.CurrentMin)
	}
	if c.Queue.MoveMax <= 0 {
		return fmt.Errorf("queue.move_max must be positive, got %d", c.Queue.MoveMax)
	}
	return nil
}

// HoldDate returns the parsed hold date. Only valid after Validate.
func (c *Config) HoldDate() time.Time {
	return c.holdDate
}
