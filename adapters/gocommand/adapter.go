// Package gocommand attaches the module's sync commands and read queries to
// go-command's registry and dispatcher, and mirrors queue-routed commands
// into go-job's queue registry.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// Subscription is a live dispatcher registration; Unsubscribe detaches it.
type Subscription = commanddispatcher.Subscription

// ValidateMessage enforces the Type() plus optional Validate() contract every
// sync message carries before it reaches a handler.
func ValidateMessage(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// Bus owns one go-command registry for the module's handlers. Attach the
// facade's commands and queries to it, add queue resolvers for the crawl
// commands that should run on a go-job backend, then Initialize.
type Bus struct {
	registry *command.Registry
}

func NewBus() *Bus {
	return &Bus{registry: command.NewRegistry()}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

func (b *Bus) register(handler any) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	return b.registry.RegisterCommand(handler)
}

func (b *Bus) AddResolver(key string, resolver command.Resolver) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	return b.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into the go-job queue
// registry so crawl schedules dispatch through the queue instead of inline.
func (b *Bus) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return b.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (b *Bus) HasResolver(key string) bool {
	if b == nil || b.registry == nil {
		return false
	}
	return b.registry.HasResolver(strings.TrimSpace(key))
}

func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	return b.registry.Initialize()
}

// AttachCommand registers a command handler on the bus and subscribes it on
// the process dispatcher in one step. The subscription is torn down when
// registration fails.
func AttachCommand[T any](bus *Bus, cmd command.Commander[T], runnerOpts ...runner.Option) (Subscription, error) {
	if bus == nil || bus.registry == nil {
		return nil, fmt.Errorf("gocommand: bus is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := bus.register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// AttachQuery registers a query handler on the bus and subscribes it on the
// process dispatcher.
func AttachQuery[T any, R any](bus *Bus, qry command.Querier[T, R], runnerOpts ...runner.Option) (Subscription, error) {
	if bus == nil || bus.registry == nil {
		return nil, fmt.Errorf("gocommand: bus is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := bus.register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Dispatch routes a command message through the process dispatcher.
func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// Query routes a query message through the process dispatcher.
func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}
