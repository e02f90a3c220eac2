package main

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"rampwatch/pkg/config"
	"rampwatch/pkg/models"
)

func validTestConfig() config.Config {
	return config.Config{
		NodeURL: "ws://127.0.0.1:9944",
		Recipient: models.Recipient{
			Name:    "Alice",
			Address: "5Recipient",
			IBAN:    "CH2100000000000000000",
		},
		Accounts: []config.AccountConfig{{Name: "alice", Address: "5Alice"}},
		Units: config.UnitsConfig{
			Unit:          config.DefaultUnit,
			Decimals:      config.DefaultDecimals,
			BaselineUnits: config.DefaultBaselineUnits,
		},
	}
}

func TestRunNodeCheckOK(t *testing.T) {
	report := runNodeCheck(validTestConfig(), "/tmp/rampwatch.json", func(url string) (string, error) {
		assert.Equal(t, "ws://127.0.0.1:9944", url)
		return "RampNet", nil
	})

	assert.True(t, report.ValidStructure)
	assert.Empty(t, report.StructureErrors)
	assert.Equal(t, "ok", report.NodeStatus)
	assert.Equal(t, "RampNet", report.Chain)
	assert.Equal(t, "/tmp/rampwatch.json", report.ConfigPath)
}

func TestRunNodeCheckNodeError(t *testing.T) {
	report := runNodeCheck(validTestConfig(), "", func(url string) (string, error) {
		return "", fmt.Errorf("connection refused")
	})

	assert.True(t, report.ValidStructure)
	assert.Equal(t, "error", report.NodeStatus)
	assert.Contains(t, report.NodeError, "connection refused")
}

func TestRunNodeCheckInvalidStructure(t *testing.T) {
	cfg := validTestConfig()
	cfg.NodeURL = ""
	probed := false
	report := runNodeCheck(cfg, "", func(string) (string, error) {
		probed = true
		return "", nil
	})

	assert.False(t, report.ValidStructure)
	assert.NotEmpty(t, report.StructureErrors)
	assert.False(t, probed, "an invalid configuration must not be probed")
}

func TestNewLogger(t *testing.T) {
	log := newLogger("debug", "", true)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log = newLogger("nonsense", "", true)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
