package config

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DunningTier describes one rung of the reminder escalation ladder.
type DunningTier struct {
	Tier             int `mapstructure:"tier"`
	MinDaysOverdue   int `mapstructure:"minDaysOverdue"`
	MinDaysSinceLast int `mapstructure:"minDaysSinceLast"`
}

// DunningConfig is the escalation ladder applied by the reminder sweep.
type DunningConfig struct {
	Tiers []DunningTier `mapstructure:"tiers"`
}

func DefaultDunningConfig() DunningConfig {
	return DunningConfig{
		Tiers: []DunningTier{
			{Tier: 1, MinDaysOverdue: 1, MinDaysSinceLast: 0},
			{Tier: 2, MinDaysOverdue: 7, MinDaysSinceLast: 6},
			{Tier: 3, MinDaysOverdue: 15, MinDaysSinceLast: 7},
			{Tier: 4, MinDaysOverdue: 30, MinDaysSinceLast: 14},
		},
	}
}

// MaxTier returns the highest configured tier number. Holders store
// normalized configs, so the last tier is the highest.
func (c DunningConfig) MaxTier() int {
	if len(c.Tiers) == 0 {
		return 0
	}
	return c.Tiers[len(c.Tiers)-1].Tier
}

// DunningConfigHolder serves the current ladder and hot-reloads it from disk.
type DunningConfigHolder struct {
	current atomic.Value // holds DunningConfig
}

func NewDunningConfigHolder() (*DunningConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("dunning")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/facturo/config")
	v.AddConfigPath("/etc/facturo")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FACTURO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultDunningConfig()
		v.SetDefault("dunning.tiers", defaults.Tiers)
	}

	var cfg DunningConfig
	if err := v.UnmarshalKey("dunning", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Tiers) == 0 {
		cfg = DefaultDunningConfig()
	}
	if err := validateDunningConfig(cfg); err != nil {
		return nil, err
	}

	holder := &DunningConfigHolder{}
	holder.current.Store(normalizeDunningConfig(cfg))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DunningConfig
		if err := v.UnmarshalKey("dunning", &updated); err != nil {
			log.Printf("[dunning-config] reload failed: %v", err)
			return
		}
		if err := validateDunningConfig(updated); err != nil {
			log.Printf("[dunning-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(normalizeDunningConfig(updated))
		log.Printf("[dunning-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticDunningConfigHolder wraps a fixed ladder with no file
// watching. Used by tests and embedded setups.
func NewStaticDunningConfigHolder(cfg DunningConfig) (*DunningConfigHolder, error) {
	if err := validateDunningConfig(cfg); err != nil {
		return nil, err
	}
	holder := &DunningConfigHolder{}
	holder.current.Store(normalizeDunningConfig(cfg))
	return holder, nil
}

func (h *DunningConfigHolder) Get() DunningConfig {
	return h.current.Load().(DunningConfig)
}

func validateDunningConfig(cfg DunningConfig) error {
	if len(cfg.Tiers) == 0 {
		return errors.New("dunning.tiers cannot be empty")
	}
	seen := map[int]bool{}
	for _, tier := range cfg.Tiers {
		if tier.Tier < 1 {
			return errors.New("dunning tier numbers start at 1")
		}
		if seen[tier.Tier] {
			return errors.New("duplicate dunning tier")
		}
		seen[tier.Tier] = true
		if tier.MinDaysOverdue < 0 || tier.MinDaysSinceLast < 0 {
			return errors.New("dunning tier thresholds must be non-negative")
		}
	}
	return nil
}

func normalizeDunningConfig(cfg DunningConfig) DunningConfig {
	sort.Slice(cfg.Tiers, func(i, j int) bool {
		return cfg.Tiers[i].Tier < cfg.Tiers[j].Tier
	})
	return cfg
}
