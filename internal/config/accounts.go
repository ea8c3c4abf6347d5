package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/store"
)

// accountsFile mirrors the accounts.yaml layout: countries at the top,
// platforms under each, handle entries under each platform.
//
//	accounts:
//	  nederland:
//	    platforms:
//	      instagram:
//	        - handle: nlembassy
//	          display_name: NL Embassy
//	        - plainhandle
type accountsFile struct {
	Accounts map[string]countryEntry `yaml:"accounts"`
}

type countryEntry struct {
	Platforms map[string][]accountEntry `yaml:"platforms"`
}

// accountEntry accepts either a bare handle string or a mapping with
// metadata.
type accountEntry struct {
	Handle      string `yaml:"handle"`
	Status      string `yaml:"status"`
	DisplayName string `yaml:"display_name"`
	Notes       string `yaml:"notes"`
}

func (e *accountEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Handle = node.Value
		return nil
	}
	type plain accountEntry
	return node.Decode((*plain)(e))
}

// normalizeStatus folds the statuses that appear in the config file
// (including the Dutch variants and "hacked") into active/inactive.
func normalizeStatus(s string) domain.AccountStatus {
	switch s {
	case "inactief", "inactive", "gehackt", "hacked":
		return domain.AccountStatusInactive
	default:
		return domain.AccountStatusActive
	}
}

// LoadAccounts parses an accounts.yaml file into domain accounts.
// Entries without a handle are skipped; unknown platforms are an error
// since a typo would silently drop a whole account list.
func LoadAccounts(path string) ([]domain.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	var accounts []domain.Account
	for country, entry := range file.Accounts {
		for platformName, handles := range entry.Platforms {
			platform, err := domain.ParsePlatform(platformName)
			if err != nil {
				return nil, fmt.Errorf("accounts file, country %s: %w", country, err)
			}
			for _, h := range handles {
				if h.Handle == "" {
					continue
				}
				accounts = append(accounts, domain.Account{
					ID:          domain.AccountID(country, platform, h.Handle),
					Country:     country,
					Platform:    platform,
					Handle:      h.Handle,
					DisplayName: h.DisplayName,
					Status:      normalizeStatus(h.Status),
					Notes:       h.Notes,
				})
			}
		}
	}
	return accounts, nil
}

// SyncAccounts loads the accounts file and upserts every account, so the
// file remains the source of truth for the roster.
func SyncAccounts(ctx context.Context, path string, accounts store.AccountStore) (int, error) {
	loaded, err := LoadAccounts(path)
	if err != nil {
		return 0, err
	}
	for _, account := range loaded {
		if err := accounts.UpsertAccount(ctx, account); err != nil {
			return 0, fmt.Errorf("upsert account %s: %w", account.ID, err)
		}
	}
	return len(loaded), nil
}
