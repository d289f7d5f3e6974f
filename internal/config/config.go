package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/release-graph/internal/retry"
	"yqhp/release-graph/internal/taskcluster"
	"yqhp/release-graph/pkg/logger"
)

// Config represents the complete configuration of the release graph generator.
type Config struct {
	Taskcluster TaskclusterConfig `yaml:"taskcluster"`
	Retry       retry.Policy      `yaml:"retry"`
	Release     ReleaseConfig     `yaml:"release"`
	Audit       AuditConfig       `yaml:"audit"`
	Logging     LoggingConfig     `yaml:"logging"`
	FakeCluster FakeClusterConfig `yaml:"fake_cluster"`

	// Automation is set inside CI. The nightly duplicate check only runs then.
	Automation bool `yaml:"automation" env:"MOZ_AUTOMATION"`
}

// TaskclusterConfig holds the service endpoints.
type TaskclusterConfig struct {
	RootURL    string        `yaml:"root_url" env:"TASKCLUSTER_PROXY_URL"`
	QueueURL   string        `yaml:"queue_url" env:"RG_QUEUE_URL"`
	IndexURL   string        `yaml:"index_url" env:"RG_INDEX_URL"`
	SecretsURL string        `yaml:"secrets_url" env:"RG_SECRETS_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"RG_TASKCLUSTER_TIMEOUT"`
}

// ProductConfig is one application flavour produced by the release build.
type ProductConfig struct {
	Name string `yaml:"name"`
	// Artifact is the logical artifact path, e.g. public/focus.apk.
	Artifact string `yaml:"artifact"`
	// OutputPath is where the build leaves the unsigned apk.
	OutputPath string `yaml:"output_path"`
}

// ChannelConfig maps a release type onto a build type and a store track.
type ChannelConfig struct {
	BuildType string `yaml:"build_type"`
	Track     string `yaml:"track"`
	Channel   string `yaml:"channel"`
}

// ReleaseConfig holds everything the task graph builder needs besides the
// trigger parameters.
type ReleaseConfig struct {
	TrustDomain   string `yaml:"trust_domain" env:"RG_TRUST_DOMAIN"`
	ScopePrefix   string `yaml:"scope_prefix" env:"RG_SCOPE_PREFIX"`
	Owner         string `yaml:"owner" env:"RG_OWNER"`
	Source        string `yaml:"source" env:"RG_SOURCE"`
	Image         string `yaml:"image" env:"RG_IMAGE"`
	ProvisionerID string `yaml:"provisioner_id" env:"RG_PROVISIONER_ID"`
	SchedulerID   string `yaml:"scheduler_id" env:"RG_SCHEDULER_ID"`
	Priority      string `yaml:"priority" env:"RG_PRIORITY"`
	Retries       int    `yaml:"retries" env:"RG_TASK_RETRIES"`
	MaxRunTime    int    `yaml:"max_run_time" env:"RG_MAX_RUN_TIME"`

	Deadline        time.Duration `yaml:"deadline" env:"RG_DEADLINE"`
	Expires         time.Duration `yaml:"expires" env:"RG_EXPIRES"`
	ArtifactExpires time.Duration `yaml:"artifact_expires" env:"RG_ARTIFACT_EXPIRES"`

	WorkerType      string `yaml:"worker_type" env:"RG_WORKER_TYPE"`
	BuildWorkerType string `yaml:"build_worker_type" env:"RG_BUILD_WORKER_TYPE"`
	BuildCommand    string `yaml:"build_command" env:"RG_BUILD_COMMAND"`
	SigningFormat   string `yaml:"signing_format" env:"RG_SIGNING_FORMAT"`
	PushProduct     string `yaml:"push_product" env:"RG_PUSH_PRODUCT"`

	Products []ProductConfig `yaml:"products"`

	// ProductionSigningBuildTypes may be production signed at level 3.
	ProductionSigningBuildTypes []string `yaml:"production_signing_build_types"`
	// DepSigningBuildTypes are additionally signed (and indexed), but only
	// ever with the dep-signing tier.
	DepSigningBuildTypes []string `yaml:"dep_signing_build_types"`

	// Channels is keyed by release type.
	Channels map[string]ChannelConfig `yaml:"channels"`
}

// SigningBuildTypes returns every build type the signing table knows.
func (r ReleaseConfig) SigningBuildTypes() []string {
	all := make([]string, 0, len(r.ProductionSigningBuildTypes)+len(r.DepSigningBuildTypes))
	all = append(all, r.ProductionSigningBuildTypes...)
	return append(all, r.DepSigningBuildTypes...)
}

// AuditConfig controls where the realized task graph is persisted.
type AuditConfig struct {
	FilePath    string            `yaml:"file_path" env:"RG_AUDIT_FILE"`
	Pretty      bool              `yaml:"pretty" env:"RG_AUDIT_PRETTY"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
}

// ObjectStoreConfig holds S3 compatible storage settings for audit uploads.
type ObjectStoreConfig struct {
	Enabled   bool   `yaml:"enabled" env:"RG_OBJECT_STORE_ENABLED"`
	Endpoint  string `yaml:"endpoint" env:"RG_OBJECT_STORE_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"RG_OBJECT_STORE_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"RG_OBJECT_STORE_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"RG_OBJECT_STORE_BUCKET"`
	Region    string `yaml:"region" env:"RG_OBJECT_STORE_REGION"`
	Prefix    string `yaml:"prefix" env:"RG_OBJECT_STORE_PREFIX"`
	UseSSL    bool   `yaml:"use_ssl" env:"RG_OBJECT_STORE_USE_SSL"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"RG_LOG_LEVEL"`
	Format     string `yaml:"format" env:"RG_LOG_FORMAT"`
	Output     string `yaml:"output" env:"RG_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"RG_LOG_FILE"`
	MaxSize    int    `yaml:"max_size" env:"RG_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"RG_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"RG_LOG_MAX_AGE"`
}

// LoggerConfig converts the section into logger settings.
func (c LoggingConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
	}
}

// FakeClusterConfig configures the local service emulator.
type FakeClusterConfig struct {
	Address string `yaml:"address" env:"RG_FAKE_CLUSTER_ADDRESS"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Taskcluster: TaskclusterConfig{
			RootURL: taskcluster.DefaultRootURL,
			Timeout: 30 * time.Second,
		},
		Retry: retry.DefaultPolicy(),
		Release: ReleaseConfig{
			TrustDomain:     "mobile",
			ScopePrefix:     "project:mobile:focus",
			Owner:           "skaspari@mozilla.com",
			Source:          "https://github.com/mozilla-mobile/focus-android/tree/master/tools/taskcluster",
			Image:           "mozillamobile/focus-android",
			ProvisionerID:   "aws-provisioner-v1",
			SchedulerID:     "taskcluster-github",
			Priority:        "lowest",
			Retries:         5,
			MaxRunTime:      7200,
			Deadline:        24 * time.Hour,
			Expires:         30 * 24 * time.Hour,
			ArtifactExpires: 30 * 24 * time.Hour,
			WorkerType:      "github-worker",
			BuildWorkerType: "gecko-focus",
			BuildCommand:    `echo "--" > .adjust_token && ./gradlew --no-daemon clean test assembleRelease`,
			SigningFormat:   "focus-jar",
			PushProduct:     "focus",
			Products: []ProductConfig{
				{
					Name:       "focus",
					Artifact:   "public/focus.apk",
					OutputPath: "/opt/focus-android/app/build/outputs/apk/focusWebviewUniversal/release/app-focus-webview-universal-release-unsigned.apk",
				},
				{
					Name:       "klar",
					Artifact:   "public/klar.apk",
					OutputPath: "/opt/focus-android/app/build/outputs/apk/klarWebviewUniversal/release/app-klar-webview-universal-release-unsigned.apk",
				},
			},
			ProductionSigningBuildTypes: []string{
				"nightly",
				"beta",
				"focus-release",
				"klar-release",
				"android-test-nightly",
				"android-test-beta",
			},
			DepSigningBuildTypes: []string{
				"focus-debug",
				"klar-debug",
			},
			Channels: map[string]ChannelConfig{
				"nightly": {BuildType: "nightly", Track: "nightly", Channel: "nightly"},
				"beta":    {BuildType: "beta", Track: "beta", Channel: "beta"},
				"release": {BuildType: "focus-release", Track: "production", Channel: "release"},
			},
		},
		Audit: AuditConfig{
			FilePath: "task-graph.json",
			Pretty:   false,
			ObjectStore: ObjectStoreConfig{
				Region: "us-east-1",
				Prefix: "task-graphs",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		FakeCluster: FakeClusterConfig{
			Address: "127.0.0.1:8080",
		},
	}
}

// ServiceURL returns the base URL of a service, honouring per-service overrides.
func (c TaskclusterConfig) ServiceURL(service string) string {
	switch service {
	case "queue":
		if c.QueueURL != "" {
			return c.QueueURL
		}
	case "index":
		if c.IndexURL != "" {
			return c.IndexURL
		}
	case "secrets":
		if c.SecretsURL != "" {
			return c.SecretsURL
		}
	}
	return taskcluster.ServiceURL(c.RootURL, service)
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		cmdArgs: make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := loadYAMLFile(l.configPath, cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用命令行参数覆盖失败: %w", err)
	}

	return cfg, nil
}

// loadYAMLFile merges a YAML file into out. A missing file is not an error.
func loadYAMLFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	return nil
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}

	return nil
}

// applyCmdOverrides applies command-line argument overrides to the configuration.
func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by dot-notation path,
// e.g. "release.trust_domain" or "retry.max_attempts".
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		fieldName := strings.ReplaceAll(part, "_", "")

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts).Convert(field.Type()))
		} else {
			return fmt.Errorf("不支持的切片类型: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
