package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/store"
)

const accountsYAML = `
accounts:
  nederland:
    platforms:
      instagram:
        - handle: nlembassy
          display_name: NL Embassy
          notes: main account
        - plainhandle
  turkije:
    platforms:
      twitter:
        - handle: nlinturkije
          status: gehackt
        - handle: ""
`

func writeAccountsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAccounts(t *testing.T) {
	path := writeAccountsFile(t, accountsYAML)

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	require.Len(t, accounts, 3) // the empty handle entry is skipped

	byID := make(map[string]domain.Account)
	for _, account := range accounts {
		byID[account.ID] = account
	}

	embassy := byID["nederland_instagram_nlembassy"]
	require.Equal(t, "NL Embassy", embassy.DisplayName)
	require.Equal(t, "main account", embassy.Notes)
	require.Equal(t, domain.AccountStatusActive, embassy.Status)

	// Bare string entries default to active with no metadata.
	plain := byID["nederland_instagram_plainhandle"]
	require.Equal(t, "plainhandle", plain.Handle)
	require.Equal(t, domain.AccountStatusActive, plain.Status)

	// Hacked accounts are folded into inactive.
	hacked := byID["turkije_twitter_nlinturkije"]
	require.Equal(t, domain.AccountStatusInactive, hacked.Status)
}

func TestLoadAccountsUnknownPlatform(t *testing.T) {
	path := writeAccountsFile(t, `
accounts:
  nederland:
    platforms:
      myspace:
        - handle: oops
`)
	_, err := LoadAccounts(path)
	require.Error(t, err)
}

func TestLoadAccountsMissingFile(t *testing.T) {
	_, err := LoadAccounts(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSyncAccountsUpserts(t *testing.T) {
	path := writeAccountsFile(t, accountsYAML)
	s := store.NewMemoryStore()

	count, err := SyncAccounts(context.Background(), path, s)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// Syncing again replaces rather than duplicates.
	count, err = SyncAccounts(context.Background(), path, s)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	accounts, err := s.ListAccounts(context.Background(), store.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, accounts, 3)

	active, err := s.ListAccounts(context.Background(), store.AccountFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)
}
