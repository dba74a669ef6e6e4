package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eugenenazirov/picklists/internal/packer"
)

var (
	// ErrInvalidCapacity indicates the provided capacity violates validation rules.
	ErrInvalidCapacity = errors.New("capacity must have a positive unit cap and positive weight caps")
)

// Storage provides access to the picklist capacity used by the packer.
type Storage interface {
	GetCapacity() (packer.Capacity, error)
	SetCapacity(caps packer.Capacity) error
}

// MemoryStorage keeps the capacity in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu   sync.RWMutex
	caps packer.Capacity
}

// NewMemoryStorage initialises storage with the default capacity.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		caps: packer.DefaultCapacity(),
	}
}

// GetCapacity returns the currently configured capacity.
func (s *MemoryStorage) GetCapacity() (packer.Capacity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.caps, nil
}

// SetCapacity validates and stores the provided capacity.
func (s *MemoryStorage) SetCapacity(caps packer.Capacity) error {
	if err := caps.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCapacity, err)
	}

	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()

	return nil
}
