package app

import (
	"github.com/yungbote/atelier-backend/internal/platform/envutil"
)

type Config struct {
	Port        string
	DataDir     string
	ServiceName string
	Environment string
	Version     string

	JWTSecretKey     string
	InternalAPIToken string
	MembershipURL    string
	GeneratorURL     string
	AllowedOrigins   string
}

func LoadConfig() Config {
	return Config{
		Port:             envutil.Str("PORT", "8080"),
		DataDir:          envutil.Str("DATA_DIR", "./data"),
		ServiceName:      envutil.Str("SERVICE_NAME", "atelier"),
		Environment:      envutil.Str("ENVIRONMENT", "development"),
		Version:          envutil.Str("SERVICE_VERSION", "dev"),
		JWTSecretKey:     envutil.Str("JWT_SECRET_KEY", "defaultsecret"),
		InternalAPIToken: envutil.Str("INTERNAL_API_TOKEN", ""),
		MembershipURL:    envutil.Str("MEMBERSHIP_URL", ""),
		GeneratorURL:     envutil.Str("GENERATOR_URL", ""),
		AllowedOrigins:   envutil.Str("CORS_ALLOWED_ORIGINS", ""),
	}
}
