package cache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type cachedAccount struct {
	LedgerAccountID string
	Timestamp       time.Time
}

var (
	cachedAccounts = make(map[string]cachedAccount)
	cacheDuration  = 30 * time.Minute
	mu             sync.Mutex
)

// GetAccount returns the cached ledger account id for a wallet key, or false
// when the entry is missing or stale. The repository stays the source of
// truth; this only skips a round trip on hot wallets.
func GetAccount(key string) (string, bool) {
	mu.Lock()
	defer mu.Unlock()

	entry, ok := cachedAccounts[key]
	if !ok {
		return "", false
	}
	if time.Since(entry.Timestamp) > cacheDuration {
		return "", false
	}
	return entry.LedgerAccountID, true
}

// SetAccount stores a resolved ledger account id.
func SetAccount(key, ledgerAccountID string) {
	mu.Lock()
	defer mu.Unlock()

	cachedAccounts[key] = cachedAccount{
		LedgerAccountID: ledgerAccountID,
		Timestamp:       time.Now(),
	}
	logrus.Debugf("ledger account cached for %s", key)
}
