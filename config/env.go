package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func applyEnv(cfg *Config, errs *[]string) {
	cfg.LogLevel = envStr("CBD_LOG_LEVEL", cfg.LogLevel)

	// --- Engine ---
	cfg.Engine.DuplicateWindow = Duration(envDuration("CBD_DUPLICATE_WINDOW", cfg.Engine.DuplicateWindow.Std(), errs))
	cfg.Engine.ResetOnPowerCycle = envBool("CBD_RESET_ON_POWER_CYCLE", cfg.Engine.ResetOnPowerCycle, errs)
	cfg.Engine.AreaInfoCategories = envIntSlice("CBD_AREA_INFO_CATEGORIES", cfg.Engine.AreaInfoCategories, errs)
	cfg.Engine.DefaultMaxWait = Duration(envDuration("CBD_DEFAULT_MAX_WAIT", cfg.Engine.DefaultMaxWait.Std(), errs))
	cfg.Engine.UnavailablePolicy = UnavailablePolicy(envStr("CBD_UNAVAILABLE_POLICY", string(cfg.Engine.UnavailablePolicy)))
	cfg.Engine.AmbiguityToleranceMeters = envFloat("CBD_AMBIGUITY_TOLERANCE_METERS", cfg.Engine.AmbiguityToleranceMeters, errs)
	cfg.Engine.ResetAreaInfoOnOutOfService = envBool("CBD_RESET_AREA_INFO_ON_OUT_OF_SERVICE", cfg.Engine.ResetAreaInfoOnOutOfService, errs)

	// --- Modem ---
	cfg.Modem.Device = strings.TrimSpace(envStr("CBD_MODEM_DEVICE", cfg.Modem.Device))
	cfg.Modem.Channels = envIntSlice("CBD_MODEM_CHANNELS", cfg.Modem.Channels, errs)
	cfg.Modem.Slot = envInt("CBD_MODEM_SLOT", cfg.Modem.Slot, errs)

	// --- Store ---
	cfg.Store.Path = envStr("CBD_STORE_PATH", cfg.Store.Path)
	cfg.Store.Retention = Duration(envDuration("CBD_STORE_RETENTION", cfg.Store.Retention.Std(), errs))
	cfg.Store.PurgeSchedule = envStr("CBD_STORE_PURGE_SCHEDULE", cfg.Store.PurgeSchedule)

	// --- Position ---
	cfg.Position.Source = PositionSource(envStr("CBD_POSITION_SOURCE", string(cfg.Position.Source)))
	cfg.Position.Interval = Duration(envDuration("CBD_POSITION_INTERVAL", cfg.Position.Interval.Std(), errs))

	// --- API ---
	cfg.API.ListenAddress = strings.TrimSpace(envStr("CBD_API_LISTEN_ADDRESS", cfg.API.ListenAddress))
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid number %q", key, v))
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

// envIntSlice reads a comma separated list of integers.
func envIntSlice(key string, defaultVal []int, errs *[]string) []int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	result := []int{}
	for _, field := range strings.Split(v, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, field))
			return defaultVal
		}
		result = append(result, n)
	}
	return result
}
