package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"decisionengine/internal/condition"
	"decisionengine/internal/domain"
	"decisionengine/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName        = "decisionengine"
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultIngestPath         = "/ingest"
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultNATSSubject        = "decisionengine.events"
	defaultNATSIngestStream   = "DECISION_EVENTS"
	defaultNATSIngestConsumer = "decisionengine-ingest"
	defaultNATSIngestGroup    = "decisionengine-workers"
	defaultNATSIngestWorkers  = 1
	defaultNATSAckWaitSec     = 30
	defaultNATSNackDelayMS    = 1000
	defaultNATSMaxDeliver     = -1
	defaultNATSMaxAckPending  = 2048
	defaultQueueSubject       = "decisionengine.actions"
	defaultQueueStream        = "DECISION_ACTIONS"
	defaultDBMaxConns         = 10
	defaultDBMinConns         = 1
	defaultDBMaxLifetimeSec   = 3600
	defaultDBMaxIdleSec       = 600
	defaultDecisionBaseline   = 900
	defaultActionBaseline     = 1000

	// EnvDatabaseDSN overrides database.dsn when set.
	EnvDatabaseDSN = "DECISION_DATABASE_DSN"

	// ServiceModeSingle keeps all state in process memory with HTTP ingest only.
	ServiceModeSingle = "single"
	// ServiceModePostgres persists rules, state, and records in PostgreSQL.
	ServiceModePostgres = "postgres"
)

// Config holds service runtime settings, message overrides, and seed rules.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service  ServiceConfig     `toml:"service"`
	Log      LogConfig         `toml:"log"`
	Database DatabaseConfig    `toml:"database"`
	Ingest   IngestConfig      `toml:"ingest"`
	Queue    QueueConfig       `toml:"queue"`
	IDs      IDConfig          `toml:"ids"`
	Messages map[string]string `toml:"messages"`
	Rule     []RuleConfig      `toml:"rule"`
}

// rawConfig mirrors TOML model before runtime normalization.
// Params: decoded sections from one TOML source.
// Returns: raw rule map keyed by rule ID.
type rawConfig struct {
	Service  ServiceConfig            `toml:"service"`
	Log      LogConfig                `toml:"log"`
	Database DatabaseConfig           `toml:"database"`
	Ingest   IngestConfig             `toml:"ingest"`
	Queue    QueueConfig              `toml:"queue"`
	IDs      IDConfig                 `toml:"ids"`
	Messages map[string]string        `toml:"messages"`
	Rule     map[string]rawRuleConfig `toml:"rule"`
}

// rawRuleConfig stores one rule body from `[rule.<RULE_ID>]` table.
type rawRuleConfig struct {
	Condition   string `toml:"condition"`
	Action      string `toml:"action"`
	Priority    int    `toml:"priority"`
	Active      *bool  `toml:"active"`
	Description string `toml:"description"`
}

// ServiceConfig contains process-level settings.
// Params: name, runtime mode, and category scoping switch.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name            string `toml:"name"`
	Mode            string `toml:"mode"`
	ScopeByCategory bool   `toml:"scope_by_category"`
}

// DatabaseConfig configures the PostgreSQL pool.
// Params: DSN and pool sizing/lifetime limits.
// Returns: pool options for postgres mode.
type DatabaseConfig struct {
	DSN                string `toml:"dsn"`
	MaxConns           int32  `toml:"max_conns"`
	MinConns           int32  `toml:"min_conns"`
	MaxConnLifetimeSec int    `toml:"max_conn_lifetime_sec"`
	MaxConnIdleTimeSec int    `toml:"max_conn_idle_time_sec"`
}

// MaxConnLifetime returns lifetime as duration.
func (c DatabaseConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeSec) * time.Second
}

// MaxConnIdleTime returns idle limit as duration.
func (c DatabaseConfig) MaxConnIdleTime() time.Duration {
	return time.Duration(c.MaxConnIdleTimeSec) * time.Second
}

// IngestConfig defines inbound event interfaces.
// Params: embedded HTTP and NATS subscription controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP HTTPIngestConfig `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
}

// HTTPIngestConfig configures HTTP listener and endpoint paths.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	IngestPath   string `toml:"ingest_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures the JetStream event consumer.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"subject"`
	Stream        string   `toml:"stream"`
	ConsumerName  string   `toml:"consumer_name"`
	DeliverGroup  string   `toml:"deliver_group"`
	Workers       int      `toml:"workers"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// QueueConfig configures the outbound action queue.
// Params: enable flag, NATS URLs (defaults to ingest.nats.url), subject, and stream.
// Returns: producer options.
type QueueConfig struct {
	Enabled bool     `toml:"enabled"`
	URL     []string `toml:"url"`
	Subject string   `toml:"subject"`
	Stream  string   `toml:"stream"`
}

// IDConfig holds sequence baselines used when no records exist yet.
type IDConfig struct {
	DecisionBaseline int64 `toml:"decision_baseline"`
	ActionBaseline   int64 `toml:"action_baseline"`
}

// LogConfig declares independent console and file sinks.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig configures one log sink.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// RuleConfig is one seed rule declared in config.
// Params: rule ID from table key, condition text, action, priority, and active flag.
// Returns: normalized rule ready for store seeding.
type RuleConfig struct {
	ID          string
	Condition   string
	Action      string
	Priority    int
	Active      bool
	Description string
}

// DomainRule converts seed rule into core rule type.
// Params: none.
// Returns: rule value.
func (r RuleConfig) DomainRule() domain.Rule {
	return domain.Rule{
		RuleID:      r.ID,
		Condition:   r.Condition,
		Action:      domain.ActionType(r.Action),
		Priority:    r.Priority,
		IsActive:    r.Active,
		Description: r.Description,
	}
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}
	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads, defaults, and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalizeRawConfig converts raw TOML model to runtime config.
// Params: decoded raw config from file fragment.
// Returns: normalized config with rules sorted by ID.
func normalizeRawConfig(raw rawConfig) Config {
	cfg := Config{
		Service:  raw.Service,
		Log:      raw.Log,
		Database: raw.Database,
		Ingest:   raw.Ingest,
		Queue:    raw.Queue,
		IDs:      raw.IDs,
		Messages: raw.Messages,
	}
	if len(raw.Rule) == 0 {
		return cfg
	}

	ids := make([]string, 0, len(raw.Rule))
	for id := range raw.Rule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	cfg.Rule = make([]RuleConfig, 0, len(ids))
	for _, id := range ids {
		body := raw.Rule[id]
		active := true
		if body.Active != nil {
			active = *body.Active
		}
		cfg.Rule = append(cfg.Rule, RuleConfig{
			ID:          id,
			Condition:   strings.TrimSpace(body.Condition),
			Action:      strings.ToUpper(strings.TrimSpace(body.Action)),
			Priority:    body.Priority,
			Active:      active,
			Description: body.Description,
		})
	}
	return cfg
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return normalizeRawConfig(raw), nil
}

// loadDir reads and merges TOML files from one directory in name order.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays non-empty sections of src onto dst.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.Database != (DatabaseConfig{}) {
		dst.Database = src.Database
	}
	if hasHTTPIngestConfig(src.Ingest.HTTP) {
		dst.Ingest.HTTP = src.Ingest.HTTP
	}
	if hasNATSIngestConfig(src.Ingest.NATS) {
		dst.Ingest.NATS = src.Ingest.NATS
	}
	if src.Queue.Enabled || len(src.Queue.URL) > 0 || src.Queue.Subject != "" || src.Queue.Stream != "" {
		dst.Queue = src.Queue
	}
	if src.IDs != (IDConfig{}) {
		dst.IDs = src.IDs
	}
	for actionType, message := range src.Messages {
		if dst.Messages == nil {
			dst.Messages = make(map[string]string, len(src.Messages))
		}
		dst.Messages[actionType] = message
	}
	if len(src.Rule) > 0 {
		dst.Rule = append(dst.Rule, src.Rule...)
	}
}

// applyEnvOverrides applies environment values loaded from process env or .env.
// Params: mutable config.
// Returns: none.
func applyEnvOverrides(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDatabaseDSN)); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

// applyDefaults fills omitted settings.
// Params: mutable config.
// Returns: none.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	cfg.Service.Mode = NormalizeServiceMode(cfg.Service.Mode)

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = defaultDBMaxConns
	}
	if cfg.Database.MinConns <= 0 {
		cfg.Database.MinConns = defaultDBMinConns
	}
	if cfg.Database.MaxConnLifetimeSec <= 0 {
		cfg.Database.MaxConnLifetimeSec = defaultDBMaxLifetimeSec
	}
	if cfg.Database.MaxConnIdleTimeSec <= 0 {
		cfg.Database.MaxConnIdleTimeSec = defaultDBMaxIdleSec
	}

	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		cfg.Ingest.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.HealthPath) == "" {
		cfg.Ingest.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.ReadyPath) == "" {
		cfg.Ingest.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.IngestPath) == "" {
		cfg.Ingest.HTTP.IngestPath = defaultIngestPath
	}
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = 2 << 20
	}
	if cfg.Service.Mode == ServiceModeSingle {
		cfg.Ingest.HTTP.Enabled = true
	}

	cfg.Ingest.NATS.URL = normalizeNATSURLs(cfg.Ingest.NATS.URL)
	if len(cfg.Ingest.NATS.URL) == 0 && cfg.Ingest.NATS.Enabled {
		cfg.Ingest.NATS.URL = []string{defaultNATSURL}
	}
	if cfg.Ingest.NATS.Subject == "" {
		cfg.Ingest.NATS.Subject = defaultNATSSubject
	}
	if cfg.Ingest.NATS.Stream == "" {
		cfg.Ingest.NATS.Stream = defaultNATSIngestStream
	}
	if cfg.Ingest.NATS.ConsumerName == "" {
		cfg.Ingest.NATS.ConsumerName = defaultNATSIngestConsumer
	}
	if cfg.Ingest.NATS.DeliverGroup == "" {
		cfg.Ingest.NATS.DeliverGroup = defaultNATSIngestGroup
	}
	if cfg.Ingest.NATS.Workers == 0 {
		cfg.Ingest.NATS.Workers = defaultNATSIngestWorkers
	}
	if cfg.Ingest.NATS.AckWaitSec == 0 {
		cfg.Ingest.NATS.AckWaitSec = defaultNATSAckWaitSec
	}
	if cfg.Ingest.NATS.NackDelayMS == 0 {
		cfg.Ingest.NATS.NackDelayMS = defaultNATSNackDelayMS
	}
	if cfg.Ingest.NATS.MaxDeliver == 0 {
		cfg.Ingest.NATS.MaxDeliver = defaultNATSMaxDeliver
	}
	if cfg.Ingest.NATS.MaxAckPending == 0 {
		cfg.Ingest.NATS.MaxAckPending = defaultNATSMaxAckPending
	}

	cfg.Queue.URL = normalizeNATSURLs(cfg.Queue.URL)
	if len(cfg.Queue.URL) == 0 && cfg.Queue.Enabled {
		if len(cfg.Ingest.NATS.URL) > 0 {
			cfg.Queue.URL = append([]string(nil), cfg.Ingest.NATS.URL...)
		} else {
			cfg.Queue.URL = []string{defaultNATSURL}
		}
	}
	if cfg.Queue.Subject == "" {
		cfg.Queue.Subject = defaultQueueSubject
	}
	if cfg.Queue.Stream == "" {
		cfg.Queue.Stream = defaultQueueStream
	}

	if cfg.IDs.DecisionBaseline == 0 {
		cfg.IDs.DecisionBaseline = defaultDecisionBaseline
	}
	if cfg.IDs.ActionBaseline == 0 {
		cfg.IDs.ActionBaseline = defaultActionBaseline
	}
}

// validateConfig checks cross-section constraints.
// Params: defaulted config.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	mode := NormalizeServiceMode(cfg.Service.Mode)
	if !IsSupportedServiceMode(mode) {
		return fmt.Errorf("service.mode has unsupported value %q", cfg.Service.Mode)
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	if !strings.HasPrefix(cfg.Ingest.HTTP.IngestPath, "/") {
		return errors.New("ingest.http.ingest_path must start with /")
	}
	switch mode {
	case ServiceModeSingle:
		if cfg.Ingest.NATS.Enabled {
			return errors.New("ingest.nats.enabled is not supported when service.mode=single")
		}
		if cfg.Queue.Enabled {
			return errors.New("queue.enabled is not supported when service.mode=single")
		}
	case ServiceModePostgres:
		if strings.TrimSpace(cfg.Database.DSN) == "" {
			return fmt.Errorf("database.dsn (or %s) is required when service.mode=postgres", EnvDatabaseDSN)
		}
		if cfg.Database.MinConns > cfg.Database.MaxConns {
			return errors.New("database.min_conns must be <= database.max_conns")
		}
		if !cfg.Ingest.HTTP.Enabled && !cfg.Ingest.NATS.Enabled {
			return errors.New("at least one of ingest.http or ingest.nats must be enabled")
		}
	}
	if cfg.Ingest.NATS.Enabled {
		for i, url := range cfg.Ingest.NATS.URL {
			if url == "" {
				return fmt.Errorf("ingest.nats.url[%d] is empty", i)
			}
		}
		if cfg.Ingest.NATS.Workers <= 0 {
			return errors.New("ingest.nats.workers must be >0 when ingest.nats.enabled=true")
		}
		if cfg.Ingest.NATS.AckWaitSec <= 0 {
			return errors.New("ingest.nats.ack_wait_sec must be >0")
		}
		if cfg.Ingest.NATS.NackDelayMS < 0 {
			return errors.New("ingest.nats.nack_delay_ms must be >=0")
		}
		if cfg.Ingest.NATS.MaxAckPending <= 0 {
			return errors.New("ingest.nats.max_ack_pending must be >0")
		}
	}
	if cfg.Queue.Enabled {
		for i, url := range cfg.Queue.URL {
			if url == "" {
				return fmt.Errorf("queue.url[%d] is empty", i)
			}
		}
	}

	if cfg.IDs.DecisionBaseline < 0 || cfg.IDs.ActionBaseline < 0 {
		return errors.New("ids baselines must be >=0")
	}

	for actionType, message := range cfg.Messages {
		if strings.TrimSpace(actionType) == "" {
			return errors.New("messages key must not be empty")
		}
		if err := validateMessageTemplate("messages."+actionType, message); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(cfg.Rule))
	for _, rule := range cfg.Rule {
		if _, exists := seen[rule.ID]; exists {
			return fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if err := ValidateRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRule checks one rule definition against the condition grammar and known fields.
// Params: rule definition.
// Returns: first violation.
func ValidateRule(rule RuleConfig) error {
	if strings.TrimSpace(rule.ID) == "" {
		return errors.New("rule id is required")
	}
	if rule.Condition == "" {
		return fmt.Errorf("rule.%s.condition is required", rule.ID)
	}
	if err := condition.Validate(rule.Condition, domain.KnownFields()); err != nil {
		return fmt.Errorf("rule.%s.condition is invalid: %w", rule.ID, err)
	}
	if rule.Action == "" {
		return fmt.Errorf("rule.%s.action is required", rule.ID)
	}
	if rule.Priority < 1 {
		return fmt.Errorf("rule.%s.priority must be >=1", rule.ID)
	}
	return nil
}

// hasHTTPIngestConfig reports whether HTTP ingest section has explicit values.
// Params: HTTP ingest configuration fragment.
// Returns: true when section should be merged.
func hasHTTPIngestConfig(cfg HTTPIngestConfig) bool {
	return cfg.Enabled ||
		strings.TrimSpace(cfg.Listen) != "" ||
		strings.TrimSpace(cfg.HealthPath) != "" ||
		strings.TrimSpace(cfg.ReadyPath) != "" ||
		strings.TrimSpace(cfg.IngestPath) != "" ||
		cfg.MaxBodyBytes != 0
}

// hasNATSIngestConfig reports whether NATS ingest section has explicit values.
// Params: NATS ingest configuration fragment.
// Returns: true when section should be merged.
func hasNATSIngestConfig(cfg NATSIngestConfig) bool {
	return cfg.Enabled ||
		len(cfg.URL) > 0 ||
		cfg.Subject != "" ||
		cfg.Stream != "" ||
		cfg.Workers != 0 ||
		cfg.AckWaitSec != 0 ||
		cfg.NackDelayMS != 0 ||
		cfg.MaxDeliver != 0 ||
		cfg.MaxAckPending != 0
}

// normalizeNATSURLs trims spaces around each configured NATS URL.
// Params: raw URL list from config.
// Returns: normalized URL list preserving element count for validation.
func normalizeNATSURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = strings.TrimSpace(urls[i])
	}
	return out
}

// NormalizeServiceMode canonicalizes service mode and applies default.
// Params: raw mode value from config.
// Returns: normalized mode (`single` by default).
func NormalizeServiceMode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ServiceModeSingle
	}
	return normalized
}

// IsSupportedServiceMode reports whether mode value is supported.
// Params: mode value.
// Returns: true for known modes.
func IsSupportedServiceMode(mode string) bool {
	switch NormalizeServiceMode(mode) {
	case ServiceModeSingle, ServiceModePostgres:
		return true
	default:
		return false
	}
}

// validateMessageTemplate parses one message template and checks it is non-empty.
// Params: field path and template body.
// Returns: parse/empty error.
func validateMessageTemplate(path, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("%s is required", path)
	}
	if _, err := templatefmt.ParseMessageTemplate(path, trimmed); err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}
	return nil
}
