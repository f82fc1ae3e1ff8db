// internal/source/registry.go
package source

import "sync"

var (
	regMu    sync.RWMutex
	registry = map[string]Decoder{}
)

func Register(kind string, d Decoder) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[kind] = d
}

func Get(kind string) (Decoder, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	d, ok := registry[kind]
	return d, ok
}
