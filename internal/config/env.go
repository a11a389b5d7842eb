package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// envSetter applies one environment variable, if set.
type envSetter func() error

func applyEnv(setters ...envSetter) error {
	var errs []error
	for _, set := range setters {
		if err := set(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// getenv returns the value of k, or def if k is unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envString(k string, dst *string) envSetter {
	return func() error {
		*dst = getenv(k, *dst)
		return nil
	}
}

func envInt(k string, dst *int) envSetter {
	return func() error {
		v := getenv(k, "")
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*dst = n
		return nil
	}
}

func envFloat(k string, dst *float64) envSetter {
	return func() error {
		v := getenv(k, "")
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*dst = f
		return nil
	}
}

func envDuration(k string, dst *time.Duration) envSetter {
	return func() error {
		v := getenv(k, "")
		if v == "" {
			return nil
		}
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*dst = d
		return nil
	}
}

// ParseDuration accepts a Go duration ("1.5s") or a bare integer number of
// milliseconds ("1500"), the unit the command-line arguments use.
func ParseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
