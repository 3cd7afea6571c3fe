package blocklist

import (
	"sync"
)

type TrieNode struct {
	children map[byte]*TrieNode
	isEnd    bool
}

func newNode() *TrieNode {
	return &TrieNode{children: make(map[byte]*TrieNode)}
}

// DomainTrie stores domains reversed so that a parent domain is a prefix of
// every subdomain: "bad.com" -> 'm', 'o', 'c', '.', 'd', 'a', 'b'.
type DomainTrie struct {
	root *TrieNode
	size int
	lock sync.RWMutex
}

func NewDomainTrie() *DomainTrie {
	return &DomainTrie{root: newNode()}
}

func (t *DomainTrie) Insert(domain string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.insert(domain)
}

// BulkInsert takes the lock once for the whole batch.
func (t *DomainTrie) BulkInsert(domains []string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, domain := range domains {
		t.insert(domain)
	}
}

func (t *DomainTrie) insert(domain string) {
	if domain == "" {
		return
	}
	node := t.root
	// Iterate backwards through the string
	for i := len(domain) - 1; i >= 0; i-- {
		char := domain[i]
		if node.children[char] == nil {
			node.children[char] = newNode()
		}
		node = node.children[char]
	}
	if !node.isEnd {
		node.isEnd = true
		t.size++
	}
}

// Len is the number of distinct domains stored.
func (t *DomainTrie) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.size
}

// Match reports whether domain or one of its parent domains is stored.
func (t *DomainTrie) Match(domain string) bool {
	t.lock.RLock() // Read Lock: Multiple goroutines can read at the same time
	defer t.lock.RUnlock()

	node := t.root

	// Iterate backwards
	for i := len(domain) - 1; i >= 0; i-- {
		char := domain[i]

		// We have consumed a complete stored domain and the next character
		// is a label boundary: "ads.google.com" under "google.com".
		// Without the dot check "notgoogle.com" would match too.
		if node.isEnd && char == '.' {
			return true
		}

		next, exists := node.children[char]
		if !exists {
			return false
		}
		node = next
	}

	// Exact match check (e.g. input was exactly "google.com")
	return node.isEnd
}
