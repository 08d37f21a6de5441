package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"presale/pkg/models"
)

const (
	ConfigFileName = ".presale.json"
	LogFileName    = ".presale.log"

	DefaultExplorerBase    = "https://bscscan.com"
	DefaultBaseRate        = 15.0
	DefaultPhaseDays       = 7.0
	DefaultRefreshInterval = 10
	DefaultRelayWait       = 5
	DefaultPrivateKeyEnv   = "PRESALE_PRIVATE_KEY"
)

// TokenConfig describes an ERC-20 token used by the sale.
type TokenConfig struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address,omitempty"`
	Decimals uint8  `json:"decimals"`
}

// PhaseDef is one pricing phase. DurationDays nil means the default length.
type PhaseDef struct {
	Name          string   `json:"name"`
	TokensPerUnit float64  `json:"tokens_per_unit"`
	UnitsPerToken float64  `json:"units_per_token"`
	DurationDays  *float64 `json:"duration_days,omitempty"`
}

// Days returns the configured duration in days, or the default.
func (p PhaseDef) Days() float64 {
	if p.DurationDays == nil {
		return DefaultPhaseDays
	}
	return *p.DurationDays
}

// NetworkConfig is a chain the local signer can switch to.
type NetworkConfig struct {
	ChainID int64  `json:"chain_id"`
	Name    string `json:"name"`
	RPCURL  string `json:"rpc_url"`
	Symbol  string `json:"symbol,omitempty"`
}

// WalletConfig configures the local signer.
type WalletConfig struct {
	PrivateKeyEnv       string          `json:"private_key_env,omitempty"`
	KeystorePath        string          `json:"keystore_path,omitempty"`
	KeystorePasswordEnv string          `json:"keystore_password_env,omitempty"`
	Networks            []NetworkConfig `json:"networks,omitempty"`
}

// RemoteConfig configures the pairing relay used by remote signers.
type RemoteConfig struct {
	RelayURL    string `json:"relay_url,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
}

// SaleConfig is the full session configuration.
type SaleConfig struct {
	ChainID                 int64        `json:"chain_id"`
	ChainName               string       `json:"chain_name"`
	RPCURLs                 []string     `json:"rpc_urls"`
	ExplorerBase            string       `json:"explorer_base,omitempty"`
	NativeSymbol            string       `json:"native_symbol,omitempty"`
	PaymentToken            TokenConfig  `json:"payment_token"`
	SaleToken               TokenConfig  `json:"sale_token"`
	SaleAddress             string       `json:"sale_address"`
	SaleStartTime           int64        `json:"sale_start_time,omitempty"`
	Phases                  []PhaseDef   `json:"phases"`
	Capacity                float64      `json:"capacity,omitempty"`
	UsePhaseRateForEstimate bool         `json:"use_phase_rate_for_estimate"`
	BaseRate                float64      `json:"base_rate,omitempty"` // 0 = unset; estimates fall back to DefaultBaseRate
	UnlimitedApproval       bool         `json:"unlimited_approval"`
	Wallet                  WalletConfig `json:"wallet"`
	Remote                  RemoteConfig `json:"remote"`
	RefreshIntervalSeconds  int          `json:"refresh_interval_seconds,omitempty"`
	LogFile                 string       `json:"log_file,omitempty"`
	LogLevel                string       `json:"log_level,omitempty"`

	TokenExplorerURL string `json:"-"`
	SaleExplorerURL  string `json:"-"`
}

// RPCURL is the sale network endpoint, the first configured URL.
func (c *SaleConfig) RPCURL() string {
	if len(c.RPCURLs) == 0 {
		return ""
	}
	return c.RPCURLs[0]
}

// RefreshInterval is the stats/personal refresh period.
func (c *SaleConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// SaleAddr returns the sale contract address.
func (c *SaleConfig) SaleAddr() common.Address { return common.HexToAddress(c.SaleAddress) }

// PaymentAddr returns the payment token address.
func (c *SaleConfig) PaymentAddr() common.Address {
	return common.HexToAddress(c.PaymentToken.Address)
}

// AddressURL links an address on the configured explorer.
func (c *SaleConfig) AddressURL(addr string) string {
	return c.ExplorerBase + "/address/" + addr
}

// TxURL links a transaction on the configured explorer.
func (c *SaleConfig) TxURL(hash string) string {
	return c.ExplorerBase + "/tx/" + hash
}

// Validate reports every missing required field at once.
func (c *SaleConfig) Validate() error {
	var missing []string
	if !isAddress(c.PaymentToken.Address) {
		missing = append(missing, "payment_token.address")
	}
	if !isAddress(c.SaleAddress) {
		missing = append(missing, "sale_address")
	}
	if c.SaleToken.Address != "" && !isAddress(c.SaleToken.Address) {
		missing = append(missing, "sale_token.address")
	}
	if len(c.RPCURLs) == 0 {
		missing = append(missing, "rpc_urls")
	}
	if len(missing) > 0 {
		return models.ConfigError(missing)
	}
	return nil
}

func isAddress(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && common.IsHexAddress(s)
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

func LoadConfigFromFile(path string) (*SaleConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

// LoadConfig decodes a SaleConfig, loads .env, then applies environment
// overrides and defaults. It does not validate. The result is a runtime view
// and must not be written back with SaveConfig.
func LoadConfig(r io.Reader) (*SaleConfig, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	_ = godotenv.Load()
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func decode(r io.Reader) (*SaleConfig, error) {
	var cfg SaleConfig
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadConfigFile decodes path as written, without .env, environment
// overrides or defaults.
func ReadConfigFile(path string) (*SaleConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return decode(f)
}

// SaveChainID records chainID in the config file at path and leaves the
// other fields as the file has them.
func SaveChainID(path string, chainID int64) error {
	cfg, err := ReadConfigFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	cfg.ChainID = chainID
	return SaveConfig(cfg, path)
}

func applyEnv(cfg *SaleConfig) {
	if v := os.Getenv("PRESALE_RPC_URL"); v != "" {
		urls := []string{v}
		for _, u := range cfg.RPCURLs {
			if u != v {
				urls = append(urls, u)
			}
		}
		cfg.RPCURLs = urls
	}
	setStr(&cfg.Remote.ProjectID, "PRESALE_PROJECT_ID")
	setStr(&cfg.Remote.RelayURL, "PRESALE_RELAY_URL")
	setStr(&cfg.LogLevel, "PRESALE_LOG_LEVEL")
	setInt(&cfg.RefreshIntervalSeconds, "PRESALE_REFRESH_SECONDS")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func applyDefaults(cfg *SaleConfig) {
	cfg.ExplorerBase = strings.TrimRight(strings.TrimSpace(cfg.ExplorerBase), "/")
	if cfg.ExplorerBase == "" {
		cfg.ExplorerBase = DefaultExplorerBase
	}
	if cfg.SaleToken.Address != "" {
		cfg.TokenExplorerURL = cfg.AddressURL(cfg.SaleToken.Address)
	}
	if cfg.SaleAddress != "" {
		cfg.SaleExplorerURL = cfg.AddressURL(cfg.SaleAddress)
	}
	if cfg.PaymentToken.Symbol == "" {
		cfg.PaymentToken.Symbol = "USDT"
	}
	if cfg.SaleToken.Symbol == "" {
		cfg.SaleToken.Symbol = "TOKEN"
	}
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "BNB"
	}
	if cfg.RefreshIntervalSeconds <= 0 {
		cfg.RefreshIntervalSeconds = DefaultRefreshInterval
	}
	if cfg.Remote.WaitSeconds <= 0 {
		cfg.Remote.WaitSeconds = DefaultRelayWait
	}
	if cfg.Wallet.PrivateKeyEnv == "" {
		cfg.Wallet.PrivateKeyEnv = DefaultPrivateKeyEnv
	}
	if cfg.LogFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.LogFile = filepath.Join(home, LogFileName)
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Networks returns the chains the local signer knows, always including the
// sale chain.
func (c *SaleConfig) Networks() []NetworkConfig {
	nets := append([]NetworkConfig(nil), c.Wallet.Networks...)
	for _, n := range nets {
		if n.ChainID == c.ChainID {
			return nets
		}
	}
	return append([]NetworkConfig{{
		ChainID: c.ChainID,
		Name:    c.ChainName,
		RPCURL:  c.RPCURL(),
		Symbol:  c.NativeSymbol,
	}}, nets...)
}

// SaveConfig writes cfg to path, keeping a timestamped backup of the old
// file. cfg should come from ReadConfigFile.
func SaveConfig(cfg *SaleConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("validation failed: configuration is nil")
	}
	if len(cfg.RPCURLs) == 0 {
		return fmt.Errorf("validation failed: configuration must have at least one RPC URL")
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}
