package env

import (
	"sync"

	"github.com/google/uuid"

	"vessel.services/vessel/core"
)

// Environments manages a set of isolated environments within one host
// process.
type Environments struct {
	mutex sync.RWMutex
	envs  map[uuid.UUID]*Environment
}

func NewEnvironments() *Environments {
	return &Environments{
		envs: make(map[uuid.UUID]*Environment),
	}
}

// Create starts a new environment and registers it.
func (es *Environments) Create(name string, options Options) *Environment {
	e := New(name, options)
	es.mutex.Lock()
	es.envs[e.ID()] = e
	es.mutex.Unlock()
	return e
}

// Get returns a registered environment.
func (es *Environments) Get(id uuid.UUID) (*Environment, error) {
	es.mutex.RLock()
	e, exist := es.envs[id]
	es.mutex.RUnlock()
	if !exist {
		return nil, core.ErrEnvironmentDown
	}
	return e, nil
}

// List returns a snapshot of the registered environments.
func (es *Environments) List() []*Environment {
	es.mutex.RLock()
	defer es.mutex.RUnlock()
	list := make([]*Environment, 0, len(es.envs))
	for _, e := range es.envs {
		list = append(list, e)
	}
	return list
}

// Drop stops the environment and removes it from the set.
func (es *Environments) Drop(id uuid.UUID) error {
	es.mutex.Lock()
	e, exist := es.envs[id]
	delete(es.envs, id)
	es.mutex.Unlock()
	if !exist {
		return core.ErrEnvironmentDown
	}
	e.Stop()
	return nil
}
