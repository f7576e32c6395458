// Package config loads the buildwatch.yaml configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"buildwatch/internal/classifier"
	"buildwatch/pkg/servicemsg"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the default config file path.
const EnvConfigPath = "BUILDWATCH_CONFIG"

// Config represents a buildwatch.yaml file.
type Config struct {
	Classifier Classifier `yaml:"classifier"`
	Decoder    Decoder    `yaml:"decoder"`
	Validation Validation `yaml:"validation"`
}

// Classifier holds the failure report literals.
type Classifier struct {
	FailureMarker string `yaml:"failure_marker"`
	ReporterTag   string `yaml:"reporter_tag"`
	ReportName    string `yaml:"report_name"`
}

// Decoder holds the service message patterns.
type Decoder struct {
	Pattern     string `yaml:"pattern"`
	FlowPattern string `yaml:"flow_pattern"`
}

// Validation configures the flow check run after the process exits.
type Validation struct {
	Enabled  bool   `yaml:"enabled"`
	Kind     string `yaml:"kind"`
	Expected *int   `yaml:"expected,omitempty"` // nil skips the count check
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Classifier: Classifier{
			FailureMarker: classifier.DefaultFailureMarker,
			ReporterTag:   classifier.DefaultReporterTag,
			ReportName:    classifier.DefaultReportName,
		},
		Decoder: Decoder{
			Pattern:     servicemsg.DefaultPattern,
			FlowPattern: servicemsg.DefaultFlowPattern,
		},
		Validation: Validation{Kind: "test"},
	}
}

// Parse decodes data on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load reads path. An empty path falls back to $BUILDWATCH_CONFIG; when neither is set the
// defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for structural correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.Classifier.FailureMarker == "" {
		errs = append(errs, errors.New("classifier.failure_marker must not be empty"))
	}
	if c.Classifier.ReporterTag == "" {
		errs = append(errs, errors.New("classifier.reporter_tag must not be empty"))
	}
	if _, err := regexp.Compile(c.Decoder.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("decoder.pattern: %w", err))
	}
	if re, err := regexp.Compile(c.Decoder.FlowPattern); err != nil {
		errs = append(errs, fmt.Errorf("decoder.flow_pattern: %w", err))
	} else if re.NumSubexp() < 1 {
		errs = append(errs, errors.New("decoder.flow_pattern needs a capture group for the flow id"))
	}
	if c.Validation.Kind == "" {
		errs = append(errs, errors.New("validation.kind must not be empty"))
	}
	if c.Validation.Expected != nil && *c.Validation.Expected < 0 {
		errs = append(errs, fmt.Errorf("validation.expected must be >= 0, got %d", *c.Validation.Expected))
	}

	return errors.Join(errs...)
}

// ClassifierConfig converts the classifier section.
func (c *Config) ClassifierConfig() classifier.Config {
	return classifier.Config{
		FailureMarker: c.Classifier.FailureMarker,
		ReporterTag:   c.Classifier.ReporterTag,
		ReportName:    c.Classifier.ReportName,
	}
}

// Expectation converts the validation section.
func (c *Config) Expectation() servicemsg.Expectation {
	if c.Validation.Expected == nil {
		return servicemsg.Expectation{Kind: c.Validation.Kind, Total: -1}
	}
	return servicemsg.Expectation{Kind: c.Validation.Kind, Total: *c.Validation.Expected}
}

// NewFlowDecoder builds a decoder from the decoder section.
func (c *Config) NewFlowDecoder() (*servicemsg.FlowDecoder, error) {
	dec := servicemsg.NewFlowDecoder()
	if err := dec.SetPattern(c.Decoder.Pattern); err != nil {
		return nil, err
	}
	if err := dec.SetFlowPattern(c.Decoder.FlowPattern); err != nil {
		return nil, err
	}
	return dec, nil
}
