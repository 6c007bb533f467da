package secret

import (
	"context"
	"fmt"
	"sort"

	"github.com/murtihash94/kasal/pkg/env"
)

// MultiResolver routes secret references to the provider named
// in the reference.
type MultiResolver struct {
	providers map[string]Resolver
}

// NewMultiResolver builds a resolver over the supplied providers.
func NewMultiResolver(providers map[string]Resolver) *MultiResolver {
	if providers == nil {
		providers = map[string]Resolver{}
	}
	return &MultiResolver{providers: providers}
}

// Providers lists the registered provider names, sorted.
func (m *MultiResolver) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve implements the Resolver interface.
func (m *MultiResolver) Resolve(ctx context.Context, ref string) (string, error) {
	reference, err := Parse(ref)
	if err != nil {
		return "", err
	}

	provider, ok := m.providers[reference.Provider]
	if !ok {
		return "", fmt.Errorf("no secret provider registered for %q", reference.Provider)
	}

	return provider.Resolve(ctx, ref)
}

// FromEnvironment builds the resolver set configured by the
// process environment: env always, vault when an address is set.
func FromEnvironment(vars env.Environment) (*MultiResolver, error) {
	providers := map[string]Resolver{
		providerEnv: NewEnvResolver(),
	}

	if vars.VaultAddr != "" {
		resolver, err := NewVaultResolver(VaultConfig{
			Address:       vars.VaultAddr,
			Token:         vars.VaultToken,
			Namespace:     vars.VaultNamespace,
			CACertPath:    vars.VaultCACertPath,
			TLSSkipVerify: vars.VaultTLSSkipVerify,
		})
		if err != nil {
			return nil, err
		}
		providers[providerVault] = resolver
	}

	return NewMultiResolver(providers), nil
}
