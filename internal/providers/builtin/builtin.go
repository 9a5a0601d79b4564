// Package builtin wires the bundled provider adapters into a registry.
package builtin

import (
	"fmt"
	"sort"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/providers/fake"
	"github.com/ajayykmr/sms-gateway/internal/providers/msg91"
	"github.com/ajayykmr/sms-gateway/internal/providers/sns"
	"github.com/ajayykmr/sms-gateway/internal/providers/sparrow"
	"github.com/ajayykmr/sms-gateway/internal/providers/twilio"
	"github.com/ajayykmr/sms-gateway/internal/providers/vonage"
	"github.com/ajayykmr/sms-gateway/internal/providers/whatsapp"
	"github.com/ajayykmr/sms-gateway/internal/registry"
)

// Factories returns the factory of every bundled adapter keyed by name. The
// fake adapter records into store.
func Factories(store *fake.Store) map[string]registry.Factory {
	return map[string]registry.Factory{
		twilio.Name:   twilio.Factory,
		sparrow.Name:  sparrow.Factory,
		msg91.Name:    msg91.Factory,
		vonage.Name:   vonage.Factory,
		sns.Name:      sns.Factory,
		whatsapp.Name: whatsapp.Factory,
		fake.Name:     fake.Factory(store),
	}
}

// Register adds every bundled adapter that has a configuration entry. The
// fake adapter is always registered. Configuration names without a bundled
// adapter are rejected so typos surface at startup.
func Register(reg *registry.Registry, configs map[string]common.ProviderConfig, store *fake.Store) error {
	if store == nil {
		store = fake.NewStore()
	}
	factories := Factories(store)

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		factory, ok := factories[name]
		if !ok {
			return fmt.Errorf("builtin: no adapter named %q", name)
		}
		if err := reg.Register(name, factory, configs[name]); err != nil {
			return err
		}
	}
	if _, ok := configs[fake.Name]; !ok {
		if err := reg.Register(fake.Name, factories[fake.Name], nil); err != nil {
			return err
		}
	}
	return nil
}
