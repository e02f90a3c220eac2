package config

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rampwatch/pkg/models"
)

const ConfigFileName = ".rampwatch.json"

// Default unit settings match the demo ledger: 10 decimals, pEURO, and an
// initial recipient balance of 1000 units treated as the zero line.
const (
	DefaultUnit          = "pEURO"
	DefaultDecimals      = 10
	DefaultBaselineUnits = 1000
)

// AccountConfig holds one keyring account.
type AccountConfig struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// UnitsConfig holds display-unit settings and the donation baseline.
type UnitsConfig struct {
	Unit          string `json:"unit"`
	Decimals      int    `json:"decimals"`
	BaselineUnits int64  `json:"baseline_units"`
}

// Baseline returns the baseline balance in minimal units.
func (u UnitsConfig) Baseline() *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(u.Decimals)), nil)
	return new(big.Int).Mul(big.NewInt(u.BaselineUnits), scale)
}

// Config is the full file configuration.
type Config struct {
	NodeURL   string           `json:"node_url"`
	Recipient models.Recipient `json:"recipient"`
	Accounts  []AccountConfig  `json:"accounts"`
	Units     UnitsConfig      `json:"units"`
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Config{Units: defaultUnits()}, nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

func LoadConfig(r io.Reader) (Config, error) {
	var cfg struct {
		NodeURL   string           `json:"node_url"`
		Recipient models.Recipient `json:"recipient"`
		Accounts  json.RawMessage  `json:"accounts"`
		Units     *UnitsConfig     `json:"units"`
	}
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}

	var accounts []AccountConfig
	if len(cfg.Accounts) > 0 {
		// Try unmarshal as []AccountConfig
		if err := json.Unmarshal(cfg.Accounts, &accounts); err != nil {
			accounts = nil
			// Try unmarshal as []string (legacy)
			var strAddrs []string
			if err2 := json.Unmarshal(cfg.Accounts, &strAddrs); err2 == nil {
				for _, a := range strAddrs {
					accounts = append(accounts, AccountConfig{Address: a})
				}
			}
		}
	}

	units := defaultUnits()
	if cfg.Units != nil {
		if cfg.Units.Unit != "" {
			units.Unit = cfg.Units.Unit
		}
		if cfg.Units.Decimals > 0 {
			units.Decimals = cfg.Units.Decimals
		}
		if cfg.Units.BaselineUnits > 0 {
			units.BaselineUnits = cfg.Units.BaselineUnits
		}
	}

	return Config{
		NodeURL:   cfg.NodeURL,
		Recipient: cfg.Recipient,
		Accounts:  accounts,
		Units:     units,
	}, nil
}

func defaultUnits() UnitsConfig {
	return UnitsConfig{
		Unit:          DefaultUnit,
		Decimals:      DefaultDecimals,
		BaselineUnits: DefaultBaselineUnits,
	}
}

// Validate checks the structural requirements for running against a node.
func (c Config) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.NodeURL) == "" {
		return append(errs, "no node_url in configuration")
	}
	if strings.TrimSpace(string(c.Recipient.Address)) == "" {
		errs = append(errs, "recipient has no address")
	}
	if strings.TrimSpace(c.Recipient.IBAN) == "" {
		errs = append(errs, "recipient has no IBAN")
	}
	if len(c.Accounts) == 0 {
		errs = append(errs, "no keyring accounts in configuration")
	}
	for i, a := range c.Accounts {
		if strings.TrimSpace(a.Address) == "" {
			errs = append(errs, fmt.Sprintf("account at index %d has no address", i))
		}
	}
	return errs
}

func SaveConfig(cfg Config, path string) error {
	if strings.TrimSpace(cfg.NodeURL) == "" {
		return fmt.Errorf("validation failed: configuration must have a node_url")
	}
	if strings.TrimSpace(string(cfg.Recipient.Address)) == "" {
		return fmt.Errorf("validation failed: recipient has no address")
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
	}

	return os.WriteFile(path, data, 0600)
}
