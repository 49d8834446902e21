package config

import (
	"net"
	"strings"
)

// ValidationIssue describes a single configuration problem.
type ValidationIssue struct {
	Field   string
	Message string
}

// ValidationResult aggregates configuration errors and warnings.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// IsValid reports whether the configuration has no hard errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validate checks the configuration for problems that would prevent the
// client from working.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}
	server := cfg.GetServer()

	if server.Address == "" {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "server.address",
			Message: "server address is required",
		})
	} else if _, _, err := net.SplitHostPort(server.Address); err != nil {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "server.address",
			Message: "server address must be host:port",
		})
	}

	if strings.TrimSpace(server.Username) == "" {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "server.username",
			Message: "username is required",
		})
	}

	if server.InsecureSkipVerify && server.ServerFingerprint == "" {
		result.Warnings = append(result.Warnings, ValidationIssue{
			Field:   "server.insecure_skip_verify",
			Message: "certificate verification is disabled and no fingerprint is pinned",
		})
	}

	if (server.CertFile == "") != (server.KeyFile == "") {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "server.cert_file",
			Message: "cert_file and key_file must be set together",
		})
	}

	app := cfg.GetApplicationData()
	if app.API.Enabled && (app.API.Port <= 0 || app.API.Port > 65535) {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "application_data.api.port",
			Message: "api port must be between 1 and 65535",
		})
	}

	if app.MQTT.Enabled && app.MQTT.BrokerURL == "" {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "application_data.mqtt.broker_url",
			Message: "mqtt broker_url is required when mqtt is enabled",
		})
	}

	return result
}
