package vessel

import (
	"vessel.services/vessel/config"
	"vessel.services/vessel/env"
	"vessel.services/vessel/lib"
)

// StartEnvironment creates a new environment with the given name and
// options.
func StartEnvironment(name string, options env.Options) *env.Environment {
	return env.New(name, options)
}

// StartEnvironmentFromConfig creates a new environment from a loaded
// configuration.
func StartEnvironmentFromConfig(c config.Config) *env.Environment {
	lib.SetTrace(c.Trace)
	return env.New(c.Name, c.Options())
}
