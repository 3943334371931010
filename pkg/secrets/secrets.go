package secrets

import (
	"context"
	"errors"

	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/logger"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

var ErrSecretNotFound = errors.New("secret not found")

// Secret keys overlaid onto the configuration
const (
	KeyGenerationAPIKey = "generation_api_key"
	KeyTicketSecret     = "session_ticket_secret"
	KeyDBPassword       = "db_password"
	KeyRedisPassword    = "redis_password"
)

// Apply replaces credentials in cfg with values from m. Missing secrets keep
// the value already loaded from the environment.
func Apply(ctx context.Context, m Manager, cfg *config.Config) {
	overlay := []struct {
		key string
		dst *string
	}{
		{KeyGenerationAPIKey, &cfg.Generation.APIKey},
		{KeyTicketSecret, &cfg.Tickets.Secret},
		{KeyDBPassword, &cfg.Database.Password},
		{KeyRedisPassword, &cfg.Redis.Password},
	}
	for _, o := range overlay {
		*o.dst = m.GetSecretWithDefault(ctx, o.key, *o.dst)
	}
}

// Load builds the manager for cfg and applies it. With Vault disabled the
// configuration is left untouched.
func Load(ctx context.Context, cfg *config.Config, log *logger.Logger) (*VaultManager, error) {
	m, err := NewVaultManager(VaultConfigFrom(cfg), log)
	if err != nil {
		return nil, err
	}
	if m.Enabled() {
		Apply(ctx, m, cfg)
	}
	return m, nil
}
