// Package blocklist answers Statistical_report: whether a host, or a parent
// domain of it, is a known phishing host.
package blocklist

import (
	"context"
	"errors"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

var ErrNotLoaded = errors.New("blocklist not loaded")

// Store is the persistent rule set an Index is loaded from.
type Store interface {
	GetBlocklist() ([]string, error)
	GetAllowlist() ([]string, error)
}

// Index keeps the block and allow rules in memory. Allow rules win, so a
// whitelisted domain is never reported even when a feed lists it.
type Index struct {
	mu      sync.RWMutex
	blocked *DomainTrie
	allowed *DomainTrie
}

// New returns an Index holding the given rules.
func New(blocked, allowed []string) *Index {
	x := &Index{}
	x.replace(blocked, allowed)
	return x
}

// Load reads all rules from the store.
func Load(store Store) (*Index, error) {
	x := &Index{}
	if err := x.Reload(store); err != nil {
		return nil, err
	}
	return x, nil
}

// Reload swaps in the current rules of the store. Readers keep using the old
// tries until the swap.
func (x *Index) Reload(store Store) error {
	blocked, err := store.GetBlocklist()
	if err != nil {
		log.Printf("Loading blocklist from DB failed: %v", err)
		return err
	}
	allowed, err := store.GetAllowlist()
	if err != nil {
		log.Printf("Loading allowlist from DB failed: %v", err)
		return err
	}
	x.replace(blocked, allowed)
	log.Debugf("Blocklist loaded: %d blocked, %d allowed", len(blocked), len(allowed))
	return nil
}

func (x *Index) replace(blocked, allowed []string) {
	b, a := NewDomainTrie(), NewDomainTrie()
	b.BulkInsert(normalizeAll(blocked))
	a.BulkInsert(normalizeAll(allowed))

	x.mu.Lock()
	x.blocked, x.allowed = b, a
	x.mu.Unlock()
}

// Block adds a single rule without a reload.
func (x *Index) Block(domain string) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.blocked != nil {
		x.blocked.Insert(normalize(domain))
	}
}

// Listed implements features.BlockList.
func (x *Index) Listed(ctx context.Context, host string) (bool, error) {
	x.mu.RLock()
	blocked, allowed := x.blocked, x.allowed
	x.mu.RUnlock()

	if blocked == nil {
		return false, ErrNotLoaded
	}
	host = normalize(host)
	if allowed.Match(host) {
		return false, nil
	}
	return blocked.Match(host), nil
}

// Len returns the number of blocked domains.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.blocked == nil {
		return 0
	}
	return x.blocked.Len()
}

func normalize(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

func normalizeAll(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = normalize(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
