package core

import (
	"fmt"
	"sync"
)

type MemoryStoreRegistry struct {
	mu      sync.RWMutex
	clients map[StoreType]StoreClient
}

func NewStoreRegistry() *MemoryStoreRegistry {
	return &MemoryStoreRegistry{clients: make(map[StoreType]StoreClient)}
}

func (r *MemoryStoreRegistry) Register(storeType StoreType, client StoreClient) error {
	if client == nil {
		return fmt.Errorf("core: store client is nil")
	}
	storeType = NormalizeStoreType(string(storeType))
	if err := storeType.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[storeType]; exists {
		return fmt.Errorf("core: store already registered: %s", storeType)
	}
	r.clients[storeType] = client
	return nil
}

func (r *MemoryStoreRegistry) Get(storeType StoreType) (StoreClient, bool) {
	storeType = NormalizeStoreType(string(storeType))
	if storeType == "" {
		return nil, false
	}
	r.mu.RLock()
	client, ok := r.clients[storeType]
	r.mu.RUnlock()
	return client, ok
}

func (r *MemoryStoreRegistry) Types() []StoreType {
	r.mu.RLock()
	types := make([]StoreType, 0, len(r.clients))
	for storeType := range r.clients {
		types = append(types, storeType)
	}
	r.mu.RUnlock()
	return sortedStoreTypes(types)
}
