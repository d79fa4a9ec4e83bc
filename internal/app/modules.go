package app

import (
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/modules/bandit"
	"github.com/jasciiz/evox/modules/counter"
	"github.com/jasciiz/evox/modules/randomwalk"
)

// coreModules is the definitive list of all modules that are compiled into
// the evox binary.
func coreModules() []registry.Module {
	return []registry.Module{
		counter.New(),
		randomwalk.New(),
		bandit.New(),
	}
}
