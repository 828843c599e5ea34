package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig holds billing tunables that operators adjust without redeploying.
type BillingConfig struct {
	// PaymentIntervalDays is added to the invoice date to derive the due date.
	PaymentIntervalDays int `mapstructure:"paymentIntervalDays"`
	// EnableAccountingStartDate gates invoice seeding on the customer's
	// accounting start date having passed.
	EnableAccountingStartDate bool `mapstructure:"enableAccountingStartDate"`
	// SchedulerJobs limits which period-close jobs run; empty enables all.
	SchedulerJobs []string `mapstructure:"schedulerJobs"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		PaymentIntervalDays:       30,
		EnableAccountingStartDate: false,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cloudbill/config")
	v.AddConfigPath("/etc/cloudbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLOUDBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.paymentIntervalDays", defaults.PaymentIntervalDays)
		v.SetDefault("billing.enableAccountingStartDate", defaults.EnableAccountingStartDate)
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
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config, used by tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.PaymentIntervalDays < 0 {
		return errors.New("paymentIntervalDays must not be negative")
	}
	return nil
}
