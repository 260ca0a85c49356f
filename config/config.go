package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config holds per-node runtime settings — everything that can vary
// between nodes without breaking consensus. Consensus-critical values
// live in Params instead.
type Config struct {
	DataDir string `conf:"datadir"`

	P2P P2PConfig
	RPC RPCConfig
	Mining MiningConfig
	Log LogConfig
}

// P2PConfig holds peer engine settings.
type P2PConfig struct {
	Enabled     bool   `conf:"p2p.enabled"`
	ListenAddr  string `conf:"p2p.listen"`
	Port        int    `conf:"p2p.port"`
	BootNode    string `conf:"p2p.bootnode"`
	// Peer is true when the PEER environment variable equals "true".
	// Nothing reads it: ports, the data directory and boot-node
	// registration are the same whether it is set or not.
	Peer bool `conf:"p2p.peer"`
}

// RPCConfig holds the request/response API server settings.
type RPCConfig struct {
	Enabled    bool     `conf:"rpc.enabled"`
	Addr       string   `conf:"rpc.addr"`
	Port       int      `conf:"rpc.port"`
	AllowedIPs []string `conf:"rpc.allowed"`
}

// MiningConfig holds block-production settings.
type MiningConfig struct {
	Enabled  bool   `conf:"mining.enabled"`
	Coinbase string `conf:"mining.coinbase"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet
//	macOS:   ~/Library/Application Support/Klingnet
//	Windows: %APPDATA%\Klingnet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingnet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingnet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingnet")
	default:
		return filepath.Join(home, ".klingnet")
	}
}

// Default returns the default node configuration.
func Default() *Config {
	p := DefaultParams()
	return &Config{
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       3221,
			BootNode:   p.BootNode,
			Peer:       os.Getenv("PEER") == "true",
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       3219,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Mining: MiningConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// BlocksDir returns the durable block store directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.DataDir, "blocks")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet.conf")
}
