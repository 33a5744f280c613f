package config

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Store.DSN == "" {
		return ErrInvalid("store.dsn is required (or PR_STORE_DSN)")
	}
	if cfg.Store.Table == "" {
		return ErrInvalid("store.table is required")
	}
	if cfg.Store.MaxOpenConns < 0 || cfg.Store.MaxIdleConns < 0 {
		return ErrInvalid("store pool sizes must be >= 0")
	}
	return ValidateParams(cfg)
}
