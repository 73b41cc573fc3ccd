package agents

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const KindHTTP = "http"

var (
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrDuplicateAgent = errors.New("duplicate agent")
	ErrDuplicateRole  = errors.New("duplicate agent role")
)

// Definition is one entry of the registry file.
type Definition struct {
	Name     string `yaml:"name"`
	Role     Role   `yaml:"role"`
	Kind     string `yaml:"kind"`
	Endpoint string `yaml:"endpoint,omitempty"`
	// APIKeyEnv names the environment variable holding the bearer token.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

type registryFile struct {
	Agents []Definition `yaml:"agents"`
}

// DefaultDefinitions are used when no registry file exists.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "macro", Role: RoleMacro, Kind: KindSentiment},
		{Name: "ta", Role: RoleTA, Kind: KindTechnical},
		{Name: "onchain", Role: RoleOnchain, Kind: KindTrend},
	}
}

// Registry is the static name -> agent map built once at startup.
type Registry struct {
	agents map[string]Agent
}

func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		if _, ok := r.agents[a.Name()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
		}
		r.agents[a.Name()] = a
	}
	return r, nil
}

// LoadRegistry reads the YAML registry at path, falling back to DefaultDefinitions when the file is absent.
func LoadRegistry(cfg Config, logger *logrus.Entry) (*Registry, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	data, err := os.ReadFile(cfg.RegistryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read agent registry: %w", err)
		}
		logger.WithField("path", cfg.RegistryPath).Warn("agent registry not found, using built-in agents")
		return BuildRegistry(DefaultDefinitions(), cfg.httpOptions(), logger)
	}

	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, err
	}

	return BuildRegistry(defs, cfg.httpOptions(), logger)
}

func ParseDefinitions(data []byte) ([]Definition, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agent registry: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, errors.New("agent registry is empty")
	}
	return file.Agents, nil
}

// BuildRegistry instantiates every definition. Unknown kinds or roles fail here, not mid-cycle.
func BuildRegistry(defs []Definition, opts HTTPOptions, logger *logrus.Entry) (*Registry, error) {
	agents := make([]Agent, 0, len(defs))

	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			return nil, errors.New("agent definition without name")
		}
		if !def.Role.Valid() {
			return nil, fmt.Errorf("agent %s: invalid role %q", def.Name, def.Role)
		}

		switch def.Kind {
		case KindHTTP:
			if def.Endpoint == "" {
				return nil, fmt.Errorf("agent %s: http agent requires an endpoint", def.Name)
			}
			apiKey := ""
			if def.APIKeyEnv != "" {
				apiKey = os.Getenv(def.APIKeyEnv)
			}
			agents = append(agents, NewHTTPAgent(def.Name, def.Role, def.Endpoint, apiKey, opts, logger))
		default:
			a, err := newBuiltinAgent(def.Name, def.Role, def.Kind, logger)
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", def.Name, err)
			}
			agents = append(agents, a)
		}

		logger.WithFields(logrus.Fields{
			"agent": def.Name,
			"role":  def.Role,
			"kind":  def.Kind,
		}).Info("agent registered")
	}

	return NewRegistry(agents...)
}

// Resolve returns the agents for names, keyed by role. Each role may appear at most once.
func (r *Registry) Resolve(names []string) (map[Role]Agent, error) {
	out := make(map[Role]Agent, len(names))

	for _, name := range names {
		a, ok := r.agents[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
		}
		if prev, dup := out[a.Role()]; dup {
			return nil, fmt.Errorf("%w: %s and %s both fill %s", ErrDuplicateRole, prev.Name(), name, a.Role())
		}
		out[a.Role()] = a
	}

	return out, nil
}

func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names lists registered agents in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
