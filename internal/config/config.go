package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is populated from the environment; DATABASE_URL is the
// Supabase/Postgres connection string and is the one hard requirement.
type Config struct {
	Env            string   `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr       string   `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseURL    string   `envconfig:"DATABASE_URL" required:"true"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"localhost:*"`
}

// Load reads .env (dev convenience, ignored if absent) and then the
// process environment. A missing DATABASE_URL errors out here, before
// any listener starts.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
