// Package gocommand exposes the provisioning facade on the go-command
// dispatcher, so in-process callers can drive it by message.
package gocommand

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	provisioning "github.com/goliatone/go-provisioning"
	provcommand "github.com/goliatone/go-provisioning/command"
	"github.com/goliatone/go-provisioning/core"
	provquery "github.com/goliatone/go-provisioning/query"
)

// RegistryAdapter registers the provisioning commands and queries with a
// go-command registry and owns the dispatcher subscriptions it creates.
type RegistryAdapter struct {
	mu            sync.Mutex
	registry      *command.Registry
	subscriptions []commanddispatcher.Subscription
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// RegisterFacade registers and subscribes every facade command and query.
// On error the subscriptions made by this call are removed.
func (a *RegistryAdapter) RegisterFacade(facade *provisioning.Facade, runnerOpts ...runner.Option) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	a.mu.Lock()
	defer a.mu.Unlock()
	added := make([]commanddispatcher.Subscription, 0, 14)
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[provcommand.CreateAccountMessage](a.registry, commands.CreateAccount, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[provcommand.DeleteAccountMessage](a.registry, commands.DeleteAccount, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[provcommand.BootstrapAccountsMessage](a.registry, commands.BootstrapAccounts, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[provcommand.CreateProjectMessage](a.registry, commands.CreateProject, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[provcommand.DeleteProjectMessage](a.registry, commands.DeleteProject, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[provcommand.ProvisionResourceMessage](a.registry, commands.ProvisionResource, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[provcommand.RetryResourceMessage](a.registry, commands.RetryResource, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[provcommand.DeprovisionResourceMessage](a.registry, commands.DeprovisionResource, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[provquery.GetAccountMessage, core.Account](a.registry, queries.GetAccount, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[provquery.ListProjectsMessage, []core.ProjectRef](a.registry, queries.ListProjects, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[provquery.ListProjectAccountPairsMessage, []core.ProjectAccountPair](a.registry, queries.ListProjectAccountPairs, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[provquery.GetResourceMessage, core.ResourceLease](a.registry, queries.GetResource, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[provquery.ListResourcesMessage, []core.ResourceLease](a.registry, queries.ListResources, runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[provquery.StatusMessage, core.StatusReport](a.registry, queries.Status, runnerOpts)
		},
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			unsubscribeAll(added)
			return err
		}
		added = append(added, subscription)
	}
	a.subscriptions = append(a.subscriptions, added...)
	return nil
}

// Subscriptions reports how many dispatcher subscriptions are live.
func (a *RegistryAdapter) Subscriptions() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subscriptions)
}

// Unsubscribe removes every subscription the adapter created. It is safe to
// call more than once.
func (a *RegistryAdapter) Unsubscribe() {
	if a == nil {
		return
	}
	a.mu.Lock()
	subscriptions := a.subscriptions
	a.subscriptions = nil
	a.mu.Unlock()
	unsubscribeAll(subscriptions)
}

// Bootstrap dispatches records to the subscribed bootstrap command and
// returns how many accounts it created.
func Bootstrap(ctx context.Context, records []core.BootstrapRecord) (int, error) {
	collector := command.NewResult[int]()
	if err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), provcommand.BootstrapAccountsMessage{Records: records}); err != nil {
		return 0, err
	}
	created, _ := collector.Load()
	return created, nil
}

func subscribeCommand[T any](registry *command.Registry, cmd command.Commander[T], runnerOpts []runner.Option) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := registry.RegisterCommand(cmd); err != nil {
		subscription.Unsubscribe()
		return nil, err
	}
	return subscription, nil
}

func subscribeQuery[T any, R any](registry *command.Registry, qry command.Querier[T, R], runnerOpts []runner.Option) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := registry.RegisterCommand(qry); err != nil {
		subscription.Unsubscribe()
		return nil, err
	}
	return subscription, nil
}

func unsubscribeAll(subscriptions []commanddispatcher.Subscription) {
	for _, subscription := range subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}
