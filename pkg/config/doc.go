// Package config loads application configuration from DOCGATE_* environment
// variables.
//
// LoadConfig reads every setting, applies defaults, and validates the
// result. Only the PostgreSQL URL has no default; everything else is tuned
// for a local development setup.
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	redis, err := cache.NewRedis(cfg.CacheClientConfig())
package config
