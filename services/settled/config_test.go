package settled

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
database: "settled.db"
ledger:
  endpoint: "http://127.0.0.1:8645"
authority:
  key: "abc123"
admin:
  bearer_token: "secret"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, 15*time.Second, cfg.Ledger.Timeout.Duration)
	require.Equal(t, 64, cfg.Engine.MaxGroupItems)
	require.Equal(t, 1024, cfg.Engine.MaxBatchClaims)
	require.Equal(t, 4, cfg.Engine.MaxInFlight)
	require.Equal(t, uint64(5_000), cfg.Engine.BaseFee)
	require.Equal(t, uint64(1_000_000), cfg.Engine.AccountCreationFee)
}

func TestLoadConfigAuthorityFromEnv(t *testing.T) {
	t.Setenv("SETTLED_TEST_AUTHORITY_KEY", "  deadbeef  ")
	path := writeConfig(t, `
database: "settled.db"
ledger:
  endpoint: "http://127.0.0.1:8645"
authority:
  key_env: "SETTLED_TEST_AUTHORITY_KEY"
admin:
  bearer_token: "secret"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", cfg.Authority.Key)
}

func TestLoadConfigAuthorityFromFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "authority.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("cafef00d\n"), 0o600))
	path := writeConfig(t, `
database: "settled.db"
ledger:
  endpoint: "http://127.0.0.1:8645"
authority:
  key_file: "`+keyPath+`"
admin:
  bearer_token: "secret"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "cafef00d", cfg.Authority.Key)
}

func TestLoadConfigAuthorityKeystore(t *testing.T) {
	path := writeConfig(t, `
database: "settled.db"
ledger:
  endpoint: "http://127.0.0.1:8645"
authority:
  keystore: "/etc/gridsettle/authority.json"
  keystore_passphrase_env: "SETTLED_KEYSTORE_PASSPHRASE"
admin:
  bearer_token: "secret"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Empty(t, cfg.Authority.Key)
	require.Equal(t, "/etc/gridsettle/authority.json", cfg.Authority.Keystore)
}

func TestLoadConfigBearerTokenFromFile(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "settled.token")
	require.NoError(t, os.WriteFile(tokenPath, []byte(" topsecret \n"), 0o600))
	path := writeConfig(t, `
database: "settled.db"
ledger:
  endpoint: "http://127.0.0.1:8645"
authority:
  key: "abc123"
admin:
  bearer_token_file: "`+tokenPath+`"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "topsecret", cfg.Admin.BearerToken)
}

func TestLoadConfigRejectsIncomplete(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing database",
			body: "ledger:\n  endpoint: \"http://x\"\nauthority:\n  key: \"abc\"\nadmin:\n  bearer_token: \"s\"\n",
			want: "database",
		},
		{
			name: "missing ledger endpoint",
			body: "database: \"settled.db\"\nauthority:\n  key: \"abc\"\nadmin:\n  bearer_token: \"s\"\n",
			want: "ledger endpoint",
		},
		{
			name: "missing authority key",
			body: "database: \"settled.db\"\nledger:\n  endpoint: \"http://x\"\nadmin:\n  bearer_token: \"s\"\n",
			want: "key",
		},
		{
			name: "missing bearer token",
			body: "database: \"settled.db\"\nledger:\n  endpoint: \"http://x\"\nauthority:\n  key: \"abc\"\n",
			want: "bearer_token",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
