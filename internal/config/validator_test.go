package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.Address = "voice.example.com:64738"
	cfg.Server.Username = "alice"
	return cfg
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	result := Validate(validConfig())
	assert.True(t, result.IsValid())
	assert.Empty(t, result.Errors)
}

func TestValidateRequiresAddressAndUsername(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Address = ""
	cfg.Server.Username = "  "

	result := Validate(cfg)
	assert.False(t, result.IsValid())
	assert.Len(t, result.Errors, 2)
}

func TestValidateRejectsBareHost(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Address = "voice.example.com"

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateWarnsOnInsecureTLS(t *testing.T) {
	cfg := validConfig()
	cfg.Server.InsecureSkipVerify = true

	result := Validate(cfg)
	assert.True(t, result.IsValid())
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateCertFilesComeInPairs(t *testing.T) {
	cfg := validConfig()
	cfg.Server.CertFile = "client.pem"

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateMQTTNeedsBroker(t *testing.T) {
	cfg := validConfig()
	cfg.ApplicationData.MQTT.Enabled = true
	cfg.ApplicationData.MQTT.BrokerURL = ""

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}
