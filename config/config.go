package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full typed configuration of the bot. Every recognized field
// is enumerated here; unknown yaml keys are rejected at load time.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	Storage  StorageConfig   `yaml:"storage"`
	RPC      RPCConfig       `yaml:"rpc"`
	Provider ProviderConfig  `yaml:"provider"`
	Regime   RegimeConfig    `yaml:"regime"`
	Safety   SafetyConfig    `yaml:"safety"`
	Trading  TradingConfig   `yaml:"trading"`
	Risk     RiskConfig      `yaml:"risk"`
	Learning LearningConfig  `yaml:"learning"`
	Scanner  ScannerConfig   `yaml:"scanner"`
	Exec     ExecutionConfig `yaml:"execution"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type RPCEndpoint struct {
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
}

type RPCConfig struct {
	Endpoints           []RPCEndpoint `yaml:"endpoints"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	// Latency above this on the primary endpoint counts as congestion
	// and triggers priority fee escalation.
	CongestionLatencyMs float64 `yaml:"congestion_latency_ms"`
}

type ProviderConfig struct {
	RESTEndpoint string        `yaml:"rest_endpoint"`
	WSEndpoint   string        `yaml:"ws_endpoint"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RegimeConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type SafetyConfig struct {
	MinScore        int           `yaml:"min_score"`
	CheckTimeout    time.Duration `yaml:"check_timeout"`
	HardFailCoolOff time.Duration `yaml:"hard_fail_cool_off"`
	MaxTop10Pct     float64       `yaml:"max_top10_pct"`
	MaxDeployerPct  float64       `yaml:"max_deployer_pct"`
}

type TradingConfig struct {
	Paper bool `yaml:"paper"`
	// Mirror live decisions into the paper book even when trading live.
	PaperShadow bool `yaml:"paper_shadow"`

	BaseConvictionThreshold float64       `yaml:"base_conviction_threshold"`
	MinSmartWallets         int           `yaml:"min_smart_wallets"`
	MinTokenAge             time.Duration `yaml:"min_token_age"`
	MaxTokenAge             time.Duration `yaml:"max_token_age"`
	MinDipPct               float64       `yaml:"min_dip_pct"`
	MaxDipPct               float64       `yaml:"max_dip_pct"`

	MaxPositionSol   float64 `yaml:"max_position_sol"`
	HighConviction   float64 `yaml:"high_conviction"`
	MediumConviction float64 `yaml:"medium_conviction"`
	HighSizeFactor   float64 `yaml:"high_size_factor"`
	MediumSizeFactor float64 `yaml:"medium_size_factor"`
	LowSizeFactor    float64 `yaml:"low_size_factor"`

	StopLossPct         float64       `yaml:"stop_loss_pct"`
	TrailingActivatePct float64       `yaml:"trailing_activate_pct"`
	TrailingDistancePct float64       `yaml:"trailing_distance_pct"`
	MaxHoldDuration     time.Duration `yaml:"max_hold_duration"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	PriceTimeout        time.Duration `yaml:"price_timeout"`
	MaxExitFailures     int           `yaml:"max_exit_failures"`

	TakeProfitPcts      []float64 `yaml:"take_profit_pcts"`
	TakeProfitFractions []float64 `yaml:"take_profit_fractions"`
}

type RiskConfig struct {
	MaxDailyLossSol      float64       `yaml:"max_daily_loss_sol"`
	MaxDailyProfitSol    float64       `yaml:"max_daily_profit_sol"`
	MaxDailyExposureSol  float64       `yaml:"max_daily_exposure_sol"`
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses"`
	LossStreakCooldown   time.Duration `yaml:"loss_streak_cooldown"`
	WeeklyDrawdownSol    float64       `yaml:"weekly_drawdown_sol"`
}

type LearningConfig struct {
	Mode          string  `yaml:"mode"` // active, shadow, paused
	BatchSize     int     `yaml:"batch_size"`
	AdjustStep    float64 `yaml:"adjust_step"`
	MaxDriftPct   float64 `yaml:"max_drift_pct"`
	MinPatternObs int     `yaml:"min_pattern_obs"`
}

type ScannerConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	AnalysisWindow time.Duration `yaml:"analysis_window"`
	QueueSize      int           `yaml:"queue_size"`
}

type ExecutionConfig struct {
	MaxAttempts          int           `yaml:"max_attempts"`
	EmergencyMaxAttempts int           `yaml:"emergency_max_attempts"`
	RetryBackoff         time.Duration `yaml:"retry_backoff"`
	SubmitTimeout        time.Duration `yaml:"submit_timeout"`
	EmergencyTimeout     time.Duration `yaml:"emergency_timeout"`
	BuySlippageBps       int           `yaml:"buy_slippage_bps"`
	SellSlippageBps      int           `yaml:"sell_slippage_bps"`
	EmergencySlippageBps int           `yaml:"emergency_slippage_bps"`
	BasePriorityFee      uint64        `yaml:"base_priority_fee"`
	PaperSlippageBps     int           `yaml:"paper_slippage_bps"`
}

// Default returns a config populated with every default value.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8085},
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{Path: "sentry.db"},
		RPC: RPCConfig{
			HealthCheckInterval: 30 * time.Second,
			RequestTimeout:      10 * time.Second,
			CongestionLatencyMs: 800,
		},
		Provider: ProviderConfig{Timeout: 8 * time.Second},
		Regime: RegimeConfig{
			PollInterval: 60 * time.Second,
			FetchTimeout: 10 * time.Second,
		},
		Safety: SafetyConfig{
			MinScore:        70,
			CheckTimeout:    5 * time.Second,
			HardFailCoolOff: 24 * time.Hour,
			MaxTop10Pct:     35,
			MaxDeployerPct:  10,
		},
		Trading: TradingConfig{
			BaseConvictionThreshold: 60,
			MinSmartWallets:         2,
			MinTokenAge:             10 * time.Minute,
			MaxTokenAge:             24 * time.Hour,
			MinDipPct:               15,
			MaxDipPct:               70,
			MaxPositionSol:          1.0,
			HighConviction:          85,
			MediumConviction:        72,
			HighSizeFactor:          1.0,
			MediumSizeFactor:        0.6,
			LowSizeFactor:           0.35,
			StopLossPct:             25,
			TrailingActivatePct:     40,
			TrailingDistancePct:     20,
			MaxHoldDuration:         48 * time.Hour,
			TickInterval:            5 * time.Second,
			PriceTimeout:            4 * time.Second,
			MaxExitFailures:         5,
			TakeProfitPcts:          []float64{30, 60, 100, 200},
			TakeProfitFractions:     []float64{0.20, 0.25, 0.25, 0.15},
		},
		Risk: RiskConfig{
			MaxDailyLossSol:      1.5,
			MaxDailyProfitSol:    5.0,
			MaxDailyExposureSol:  6.0,
			MaxConsecutiveLosses: 4,
			LossStreakCooldown:   2 * time.Hour,
			WeeklyDrawdownSol:    4.0,
		},
		Learning: LearningConfig{
			Mode:          "active",
			BatchSize:     50,
			AdjustStep:    2.0,
			MaxDriftPct:   30,
			MinPatternObs: 5,
		},
		Scanner: ScannerConfig{
			PollInterval:   30 * time.Second,
			AnalysisWindow: 10 * time.Minute,
			QueueSize:      256,
		},
		Exec: ExecutionConfig{
			MaxAttempts:          3,
			EmergencyMaxAttempts: 5,
			RetryBackoff:         500 * time.Millisecond,
			SubmitTimeout:        15 * time.Second,
			EmergencyTimeout:     60 * time.Second,
			BuySlippageBps:       150,
			SellSlippageBps:      300,
			EmergencySlippageBps: 1000,
			BasePriorityFee:      10_000,
			PaperSlippageBps:     30,
		},
	}
}

// Load reads a yaml config file over the defaults and applies env overrides
// for secrets (PROVIDER_API_KEY).
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if key := os.Getenv("PROVIDER_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces bounds on every field that has them.
func (c *Config) Validate() error {
	if len(c.RPC.Endpoints) == 0 {
		return fmt.Errorf("rpc: at least one endpoint required")
	}
	if c.Provider.RESTEndpoint == "" {
		return fmt.Errorf("provider: rest_endpoint required")
	}
	if c.Safety.MinScore < 0 || c.Safety.MinScore > 100 {
		return fmt.Errorf("safety: min_score must be in [0,100]")
	}
	if c.Trading.BaseConvictionThreshold < 0 || c.Trading.BaseConvictionThreshold > 100 {
		return fmt.Errorf("trading: base_conviction_threshold must be in [0,100]")
	}
	if c.Trading.MinDipPct >= c.Trading.MaxDipPct {
		return fmt.Errorf("trading: min_dip_pct must be below max_dip_pct")
	}
	if len(c.Trading.TakeProfitPcts) != len(c.Trading.TakeProfitFractions) {
		return fmt.Errorf("trading: take_profit_pcts and take_profit_fractions must align")
	}
	if len(c.Trading.TakeProfitPcts) != 4 {
		return fmt.Errorf("trading: exactly four take-profit tiers supported")
	}
	for i := 1; i < len(c.Trading.TakeProfitPcts); i++ {
		if c.Trading.TakeProfitPcts[i] <= c.Trading.TakeProfitPcts[i-1] {
			return fmt.Errorf("trading: take_profit_pcts must be strictly ascending")
		}
	}
	for _, f := range c.Trading.TakeProfitFractions {
		if f <= 0 || f >= 1 {
			return fmt.Errorf("trading: take_profit_fractions must be in (0,1)")
		}
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 100 {
		return fmt.Errorf("trading: stop_loss_pct must be in (0,100)")
	}
	if c.Trading.TrailingDistancePct <= 0 || c.Trading.TrailingDistancePct >= 100 {
		return fmt.Errorf("trading: trailing_distance_pct must be in (0,100)")
	}
	if c.Learning.BatchSize <= 0 {
		return fmt.Errorf("learning: batch_size must be positive")
	}
	if c.Learning.MaxDriftPct <= 0 || c.Learning.MaxDriftPct > 100 {
		return fmt.Errorf("learning: max_drift_pct must be in (0,100]")
	}
	switch c.Learning.Mode {
	case "active", "shadow", "paused":
	default:
		return fmt.Errorf("learning: mode must be active, shadow or paused")
	}
	if c.Exec.MaxAttempts <= 0 || c.Exec.EmergencyMaxAttempts <= 0 {
		return fmt.Errorf("execution: attempt counts must be positive")
	}
	if c.Exec.BuySlippageBps > c.Exec.SellSlippageBps || c.Exec.SellSlippageBps > c.Exec.EmergencySlippageBps {
		return fmt.Errorf("execution: slippage ceilings must widen from buy to emergency")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("risk: max_consecutive_losses must be positive")
	}
	return nil
}
