package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/duke-git/lancet/v2/slice"

	"yqhp/release-graph/internal/retry"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// addError adds a validation error.
func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateTaskclusterConfig(&cfg.Taskcluster)
	v.validateRetryPolicy(&cfg.Retry)
	v.validateReleaseConfig(&cfg.Release)
	v.validateAuditConfig(&cfg.Audit)
	v.validateLoggingConfig(&cfg.Logging)
	v.validateFakeClusterConfig(&cfg.FakeCluster)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateTaskclusterConfig(cfg *TaskclusterConfig) {
	for field, raw := range map[string]string{
		"taskcluster.root_url":    cfg.RootURL,
		"taskcluster.queue_url":   cfg.QueueURL,
		"taskcluster.index_url":   cfg.IndexURL,
		"taskcluster.secrets_url": cfg.SecretsURL,
	} {
		if raw == "" {
			continue
		}
		if !isValidURL(raw) {
			v.addError(field, fmt.Sprintf("invalid URL '%s'", raw))
		}
	}
	if cfg.RootURL == "" && (cfg.QueueURL == "" || cfg.IndexURL == "" || cfg.SecretsURL == "") {
		v.addError("taskcluster.root_url", "root URL is required unless every service URL is set")
	}
	if cfg.Timeout < 0 {
		v.addError("taskcluster.timeout", "timeout must be non-negative")
	}
}

func (v *Validator) validateRetryPolicy(cfg *retry.Policy) {
	if cfg.MaxAttempts < 1 {
		v.addError("retry.max_attempts", "at least one attempt is required")
	}
	if cfg.Delay < 0 {
		v.addError("retry.delay", "delay must be non-negative")
	}
	if cfg.MaxDelay < 0 {
		v.addError("retry.max_delay", "max delay must be non-negative")
	}
	switch cfg.Backoff {
	case retry.BackoffFixed, retry.BackoffLinear, retry.BackoffExponential, "":
	default:
		v.addError("retry.backoff", fmt.Sprintf("invalid backoff '%s', must be one of: fixed, linear, exponential", cfg.Backoff))
	}
}

func (v *Validator) validateReleaseConfig(cfg *ReleaseConfig) {
	required := map[string]string{
		"release.trust_domain":      cfg.TrustDomain,
		"release.scope_prefix":      cfg.ScopePrefix,
		"release.image":             cfg.Image,
		"release.provisioner_id":    cfg.ProvisionerID,
		"release.scheduler_id":      cfg.SchedulerID,
		"release.worker_type":       cfg.WorkerType,
		"release.build_worker_type": cfg.BuildWorkerType,
		"release.build_command":     cfg.BuildCommand,
		"release.signing_format":    cfg.SigningFormat,
		"release.push_product":      cfg.PushProduct,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			v.addError(field, "value is required")
		}
	}

	if cfg.Retries < 0 {
		v.addError("release.retries", "retries must be non-negative")
	}
	if cfg.MaxRunTime <= 0 {
		v.addError("release.max_run_time", "max run time must be positive")
	}
	if cfg.Deadline <= 0 {
		v.addError("release.deadline", "deadline must be positive")
	}
	if cfg.Expires < cfg.Deadline {
		v.addError("release.expires", "expires must not be before the deadline")
	}
	if cfg.ArtifactExpires <= 0 {
		v.addError("release.artifact_expires", "artifact expiry must be positive")
	}

	if len(cfg.Products) == 0 {
		v.addError("release.products", "at least one product is required")
	}
	var artifacts []string
	for i, p := range cfg.Products {
		field := fmt.Sprintf("release.products[%d]", i)
		if p.Name == "" || p.Artifact == "" || p.OutputPath == "" {
			v.addError(field, "name, artifact and output_path are required")
		}
		if slice.Contain(artifacts, p.Artifact) {
			v.addError(field, fmt.Sprintf("duplicate artifact '%s'", p.Artifact))
		}
		artifacts = append(artifacts, p.Artifact)
	}

	if overlap := slice.Intersection(cfg.ProductionSigningBuildTypes, cfg.DepSigningBuildTypes); len(overlap) > 0 {
		v.addError("release.dep_signing_build_types", fmt.Sprintf("build types listed twice: %s", strings.Join(overlap, ", ")))
	}

	signing := cfg.SigningBuildTypes()
	for releaseType, channel := range cfg.Channels {
		field := "release.channels." + releaseType
		if channel.BuildType == "" || channel.Track == "" {
			v.addError(field, "build_type and track are required")
			continue
		}
		if !slice.Contain(signing, channel.BuildType) {
			v.addError(field, fmt.Sprintf("build type '%s' is not in the signing tables", channel.BuildType))
		}
	}
}

func (v *Validator) validateAuditConfig(cfg *AuditConfig) {
	if !cfg.ObjectStore.Enabled {
		return
	}
	if cfg.ObjectStore.Endpoint == "" {
		v.addError("audit.object_store.endpoint", "endpoint is required when the object store is enabled")
	} else if strings.Contains(cfg.ObjectStore.Endpoint, "://") {
		v.addError("audit.object_store.endpoint", "endpoint must be host[:port] without a scheme")
	}
	if cfg.ObjectStore.Bucket == "" {
		v.addError("audit.object_store.bucket", "bucket is required when the object store is enabled")
	}
}

// validateLoggingConfig validates the logging configuration.
func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if cfg.Format == "" {
		v.addError("logging.format", "log format is required")
	} else if !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "stderr":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required for file output")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, stderr, file, both", cfg.Output))
	}
}

func (v *Validator) validateFakeClusterConfig(cfg *FakeClusterConfig) {
	if cfg.Address != "" && !isValidAddress(cfg.Address) {
		v.addError("fake_cluster.address", "invalid address format, expected host:port or :port")
	}
}

// isValidURL checks for an absolute http(s) URL.
func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil && !isValidHostname(host) {
		return false
	}
	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}

	return true
}

// isAlphanumeric checks if a byte is alphanumeric.
func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// LoadAndValidate loads configuration from a file, applies overrides and
// validates the result.
func LoadAndValidate(path string, overrides map[string]string) (*Config, error) {
	cfg, err := NewLoader().WithConfigPath(path).WithCmdArgs(overrides).Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
