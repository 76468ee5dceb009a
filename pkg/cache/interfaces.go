package cache

// Store defines the interface for cache operations.
type Store interface {
	Get(sig Signature) (Entry, bool)
	Put(sig Signature, payload []byte) error
}

var (
	_ Store = (*Cache)(nil)
	_ Store = (*DiskCache)(nil)
)
