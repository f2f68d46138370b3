package ports

import "time"

// Namespace partitions the cache store.
type Namespace string

const (
	NamespaceIndex     Namespace = "index"
	NamespaceBodies    Namespace = "bodies"
	NamespaceSolutions Namespace = "solutions"
)

// Namespaces lists every namespace in display order.
var Namespaces = []Namespace{NamespaceIndex, NamespaceBodies, NamespaceSolutions}

// CacheEntry is one cached artifact together with the version it was fetched at.
type CacheEntry struct {
	Version  string    `json:"version"`
	StoredAt time.Time `json:"stored_at"`
	Content  []byte    `json:"content"`
}

// CacheStore persists remote artifacts for offline use. Reads never touch the
// network; writes replace an entry atomically.
type CacheStore interface {
	// Get fails with domainerr.ErrNotFound when the key is absent.
	Get(ns Namespace, key string) (*CacheEntry, error)
	Put(ns Namespace, key string, entry CacheEntry) error
	Path(ns Namespace, key string) string
	Clear(ns Namespace) (int, error)
	Info() (CacheInfo, error)
}

// CacheInfo summarizes the store contents.
type CacheInfo struct {
	Dir        string                       `json:"dir"`
	Namespaces map[Namespace]NamespaceUsage `json:"namespaces"`
}

// NamespaceUsage counts entries and bytes in one namespace.
type NamespaceUsage struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}
