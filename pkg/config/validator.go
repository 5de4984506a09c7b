package config

import "fmt"

// Validate performs comprehensive, fail-fast validation, checking
// dependency-free sections first. Config has no cross-section
// references, so each check is a free function rather than a method on
// a shared validator struct.
func Validate(cfg *Config) error {
	if err := validateLimits(cfg.Limits); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if err := validateElevator(cfg.Elevator); err != nil {
		return fmt.Errorf("elevator: %w", err)
	}
	if err := validateNotify(cfg.Notify); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func validateLimits(l WorkerLimits) error {
	if l.MaxAttempts < 0 {
		return &ValidationError{Section: "limits", Field: "max_attempts", Err: fmt.Errorf("must be non-negative, got %d", l.MaxAttempts)}
	}
	if l.MaxRetriesPerTier < 0 {
		return &ValidationError{Section: "limits", Field: "max_retries_per_tier", Err: fmt.Errorf("must be non-negative, got %d", l.MaxRetriesPerTier)}
	}
	if l.MaxWritesPerFile < 0 {
		return &ValidationError{Section: "limits", Field: "max_writes_per_file", Err: fmt.Errorf("must be non-negative, got %d", l.MaxWritesPerFile)}
	}
	switch l.MaxTier {
	case "", "cheap", "mid", "strong":
	default:
		return &ValidationError{Section: "limits", Field: "max_tier", Err: fmt.Errorf("unknown tier %q", l.MaxTier)}
	}
	return nil
}

func validateElevator(e ElevatorConfig) error {
	if e.MaxRetries < 0 {
		return &ValidationError{Section: "elevator", Field: "max_retries", Err: fmt.Errorf("must be non-negative, got %d", e.MaxRetries)}
	}
	if e.BaseBackoff < 0 || e.MaxBackoff < 0 {
		return &ValidationError{Section: "elevator", Field: "backoff", Err: fmt.Errorf("backoff durations must be non-negative")}
	}
	return nil
}

func validateNotify(n NotifyConfig) error {
	if n.Enabled && n.TokenEnv == "" {
		return &ValidationError{Section: "notify", Field: "token_env", Err: fmt.Errorf("required when notify is enabled")}
	}
	return nil
}
