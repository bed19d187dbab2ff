package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig carries the tunables of the quote engine and settlement.
type BillingConfig struct {
	DefaultCurrency   string        `mapstructure:"defaultCurrency"`
	SnapToStep        bool          `mapstructure:"snapToStep"`
	DurationBaseDays  int           `mapstructure:"durationBaseDays"`
	SettlementTimeout time.Duration `mapstructure:"settlementTimeout"`
	SettlementLockTTL time.Duration `mapstructure:"settlementLockTTL"`
	CheckoutRate      float64       `mapstructure:"checkoutRate"`
	CheckoutBurst     int           `mapstructure:"checkoutBurst"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultCurrency:   "USD",
		SnapToStep:        true,
		DurationBaseDays:  30,
		SettlementTimeout: 30 * time.Second,
		SettlementLockTTL: 45 * time.Second,
		CheckoutRate:      0.5,
		CheckoutBurst:     5,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/panelbilling")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PANELBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.snapToStep", defaults.SnapToStep)
	v.SetDefault("billing.durationBaseDays", defaults.DurationBaseDays)
	v.SetDefault("billing.settlementTimeout", defaults.SettlementTimeout)
	v.SetDefault("billing.settlementLockTTL", defaults.SettlementLockTTL)
	v.SetDefault("billing.checkoutRate", defaults.CheckoutRate)
	v.SetDefault("billing.checkoutBurst", defaults.CheckoutBurst)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizeBillingConfig(cfg)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		updated = normalizeBillingConfig(updated)
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func normalizeBillingConfig(cfg BillingConfig) BillingConfig {
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(cfg.DefaultCurrency) != 3 {
		return errors.New("billing.defaultCurrency must be a 3-letter code")
	}
	if cfg.DurationBaseDays <= 0 {
		return errors.New("billing.durationBaseDays must be positive")
	}
	if cfg.SettlementTimeout <= 0 {
		return errors.New("billing.settlementTimeout must be positive")
	}
	if cfg.SettlementLockTTL < cfg.SettlementTimeout {
		return errors.New("billing.settlementLockTTL cannot be shorter than settlementTimeout")
	}
	return nil
}
