package secrets

import (
	"context"
	"errors"
	"testing"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorchat/backend/pkg/config"
)

type fakeKV struct {
	data  map[string]any
	err   error
	calls int
}

func (f *fakeKV) Get(_ context.Context, path string) (*vault.KVSecret, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &vault.KVSecret{Data: f.data}, nil
}

func TestEnvironmentFallback(t *testing.T) {
	t.Setenv("SESSION_TICKET_SECRET", "from-env")

	m, err := NewVaultManager(VaultConfig{}, nil)
	require.NoError(t, err)
	defer m.Close()

	assert.False(t, m.Enabled())
	v, err := m.GetSecret(context.Background(), KeyTicketSecret)
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = m.GetSecret(context.Background(), "missing_key")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Equal(t, "dflt", m.GetSecretWithDefault(context.Background(), "missing_key", "dflt"))
}

func TestVaultSecretsAreCached(t *testing.T) {
	kv := &fakeKV{data: map[string]any{KeyGenerationAPIKey: "sk-vault"}}
	m, err := NewVaultManager(VaultConfig{}, nil)
	require.NoError(t, err)
	defer m.Close()
	m.kv = kv

	for i := 0; i < 3; i++ {
		v, err := m.GetSecret(context.Background(), KeyGenerationAPIKey)
		require.NoError(t, err)
		assert.Equal(t, "sk-vault", v)
	}
	assert.Equal(t, 1, kv.calls)
}

func TestApplyOverlaysConfig(t *testing.T) {
	kv := &fakeKV{data: map[string]any{KeyTicketSecret: "vault-secret"}}
	m, err := NewVaultManager(VaultConfig{}, nil)
	require.NoError(t, err)
	defer m.Close()
	m.kv = kv

	cfg := &config.Config{}
	cfg.Tickets.Secret = "env-secret"
	cfg.Database.Password = "env-db"

	Apply(context.Background(), m, cfg)

	assert.Equal(t, "vault-secret", cfg.Tickets.Secret)
	assert.Equal(t, "env-db", cfg.Database.Password)
}

func TestVaultErrorsKeepDefault(t *testing.T) {
	m, err := NewVaultManager(VaultConfig{}, nil)
	require.NoError(t, err)
	defer m.Close()
	m.kv = &fakeKV{err: errors.New("sealed")}

	_, err = m.GetSecret(context.Background(), KeyDBPassword)
	assert.Error(t, err)
	assert.Equal(t, "keep", m.GetSecretWithDefault(context.Background(), KeyDBPassword, "keep"))
}

func TestEnabledRequiresAddressAndToken(t *testing.T) {
	_, err := NewVaultManager(VaultConfig{Enabled: true}, nil)
	assert.ErrorIs(t, err, ErrNoVaultAddress)

	_, err = NewVaultManager(VaultConfig{Enabled: true, Address: "http://127.0.0.1:8200"}, nil)
	assert.ErrorIs(t, err, ErrNoVaultToken)
}
