package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig is the billing policy applied by the charge calculator and the
// invoice generator. It is reloadable at runtime; all amounts are in the
// configured currency.
type BillingConfig struct {
	Currency         string  `mapstructure:"currency"`
	OverageRatePerGB float64 `mapstructure:"overageRatePerGB"`
	DailyLateFeeRate float64 `mapstructure:"dailyLateFeeRate"`
	LateFeeCapDays   int     `mapstructure:"lateFeeCapDays"`
	DueDayOfMonth    int     `mapstructure:"dueDayOfMonth"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:         "USD",
		OverageRatePerGB: 10,
		DailyLateFeeRate: 0.02,
		LateFeeCapDays:   30,
		DueDayOfMonth:    28,
	}
}

// BillingConfigHolder exposes the current billing policy and hot-reloads it
// when the config file changes. Callers must re-read on every use; the policy
// applied to an invoice is the one current at generation time.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder(logger *zap.Logger) (*BillingConfigHolder, error) {
	log := logger.Named("billing.config")

	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/netbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NETBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.overageRatePerGB", defaults.OverageRatePerGB)
	v.SetDefault("billing.dailyLateFeeRate", defaults.DailyLateFeeRate)
	v.SetDefault("billing.lateFeeCapDays", defaults.LateFeeCapDays)
	v.SetDefault("billing.dueDayOfMonth", defaults.DueDayOfMonth)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Error("reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticBillingConfigHolder returns a holder pinned to cfg, for tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	if cfg.OverageRatePerGB < 0 {
		return errors.New("billing.overageRatePerGB cannot be negative")
	}
	if cfg.DailyLateFeeRate < 0 || cfg.DailyLateFeeRate > 1 {
		return errors.New("billing.dailyLateFeeRate must be within [0, 1]")
	}
	if cfg.LateFeeCapDays < 1 {
		return errors.New("billing.lateFeeCapDays must be at least 1")
	}
	if cfg.DueDayOfMonth < 1 || cfg.DueDayOfMonth > 28 {
		return errors.New("billing.dueDayOfMonth must be within [1, 28]")
	}
	return nil
}
