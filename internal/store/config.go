package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Symbols      []string `yaml:"symbols"`
	Timeframe    string   `yaml:"timeframe"`
	Exchange     string   `yaml:"exchange"`
	CycleSeconds int      `yaml:"cycle_seconds"`
	WarmupDays   int      `yaml:"warmup_days"`
	Risk         struct {
		MaxRiskPerTrade      float64 `yaml:"max_risk_per_trade"`
		MaxExposurePerSymbol float64 `yaml:"max_exposure_per_symbol"`
	} `yaml:"risk"`
	Execution struct {
		FeeBps         float64 `yaml:"fee_bps"`
		SlippageK      float64 `yaml:"slippage_k"`
		MinSlippageBps float64 `yaml:"min_slippage_bps"`
	} `yaml:"execution"`
	Stop struct {
		ATRMult float64 `yaml:"atr_mult"`
	} `yaml:"stop"`
	LLM struct {
		BaseURL           string  `yaml:"base_url"`
		PrimaryModel      string  `yaml:"primary_model"`
		FallbackModel     string  `yaml:"fallback_model"`
		ConsultantModel   string  `yaml:"consultant_model"`
		MaxTokens         int     `yaml:"max_tokens"`
		Temperature       float64 `yaml:"temperature"`
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		ConsultantTimeout int     `yaml:"consultant_timeout_seconds"`
		ConsultantRetries int     `yaml:"consultant_retries"`
	} `yaml:"llm"`
	Sentiment struct {
		Enabled bool   `yaml:"enabled"`
		Model   string `yaml:"model"`
	} `yaml:"sentiment"`
	Reflection struct {
		EveryNCycles int    `yaml:"every_n_cycles"`
		Model        string `yaml:"model"`
	} `yaml:"reflection"`
	Web struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"web"`
}

func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("risk.max_risk_per_trade must be in (0,1), got %.4f", c.Risk.MaxRiskPerTrade)
	}
	if c.Risk.MaxExposurePerSymbol <= 0 || c.Risk.MaxExposurePerSymbol >= 1 {
		return fmt.Errorf("risk.max_exposure_per_symbol must be in (0,1), got %.4f", c.Risk.MaxExposurePerSymbol)
	}
	if c.CycleSeconds <= 0 {
		return fmt.Errorf("cycle_seconds must be positive, got %d", c.CycleSeconds)
	}
	if c.Stop.ATRMult <= 0 {
		return fmt.Errorf("stop.atr_mult must be positive, got %.2f", c.Stop.ATRMult)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// DefaultConfig returns a config with every default applied, used when no
// config file is present.
func DefaultConfig() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"BTC/USD", "ETH/USD"}
	}
	if c.Timeframe == "" {
		c.Timeframe = "5m"
	}
	if c.Exchange == "" {
		c.Exchange = "coinbase"
	}
	if c.CycleSeconds == 0 {
		c.CycleSeconds = 90
	}
	if c.WarmupDays == 0 {
		c.WarmupDays = 120
	}
	if c.Risk.MaxRiskPerTrade == 0 {
		c.Risk.MaxRiskPerTrade = 0.005
	}
	if c.Risk.MaxExposurePerSymbol == 0 {
		c.Risk.MaxExposurePerSymbol = 0.02
	}
	if c.Execution.FeeBps == 0 {
		c.Execution.FeeBps = 2.0
	}
	if c.Execution.SlippageK == 0 {
		c.Execution.SlippageK = 0.15
	}
	if c.Execution.MinSlippageBps == 0 {
		c.Execution.MinSlippageBps = 3.0
	}
	if c.Stop.ATRMult == 0 {
		c.Stop.ATRMult = 2.0
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.LLM.PrimaryModel == "" {
		c.LLM.PrimaryModel = "deepseek/deepseek-chat-v3-0324"
	}
	if c.LLM.FallbackModel == "" {
		c.LLM.FallbackModel = "x-ai/grok-beta"
	}
	if c.LLM.ConsultantModel == "" {
		c.LLM.ConsultantModel = "x-ai/grok-4-fast"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 400
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.ConsultantTimeout == 0 {
		c.LLM.ConsultantTimeout = 30
	}
	if c.LLM.ConsultantRetries == 0 {
		c.LLM.ConsultantRetries = 2
	}
	if c.Sentiment.Model == "" {
		c.Sentiment.Model = "llama-3.1-sonar-small-128k-online"
	}
	if c.Reflection.EveryNCycles == 0 {
		c.Reflection.EveryNCycles = 120
	}
	if c.Reflection.Model == "" {
		c.Reflection.Model = "deepseek/deepseek-chat-v3-0324"
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8000"
	}
}
