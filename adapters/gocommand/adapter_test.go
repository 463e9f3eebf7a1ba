package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type syncMessage struct{}

func (syncMessage) Type() string { return "workspace_sync.command.crawl.full" }

type untypedMessage struct{}

func (untypedMessage) Type() string { return "" }

type rejectedMessage struct{}

func (rejectedMessage) Type() string { return "workspace_sync.command.crawl.phase" }

func (rejectedMessage) Validate() error { return errors.New("connection id is required") }

type crawlMessage struct {
	ConnectionID string
}

func (crawlMessage) Type() string { return "workspace_sync.command.crawl.users" }

type queuedCrawlMessage struct{}

func (queuedCrawlMessage) Type() string { return "workspace_sync.command.crawl.queued" }

type grantCountMessage struct{}

func (grantCountMessage) Type() string { return "workspace_sync.query.grants.count" }

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage(syncMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessage(untypedMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessage(rejectedMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestBusAttachAndDispatch(t *testing.T) {
	bus := NewBus()
	executed := 0
	resolverCalled := 0

	cmd := command.CommandFunc[crawlMessage](func(context.Context, crawlMessage) error {
		executed++
		return nil
	})

	if _, err := AttachCommand[crawlMessage](bus, cmd); err != nil {
		t.Fatalf("attach command: %v", err)
	}
	if err := bus.AddResolver("scheduler", func(any, command.CommandMeta, *command.Registry) error {
		resolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !bus.HasResolver("scheduler") {
		t.Fatalf("expected scheduler resolver to be registered")
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize bus: %v", err)
	}
	if resolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), crawlMessage{ConnectionID: "conn-1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestBusAttachQuery(t *testing.T) {
	bus := NewBus()

	qry := command.QueryFunc[grantCountMessage, int](func(context.Context, grantCountMessage) (int, error) {
		return 3, nil
	})

	if _, err := AttachQuery[grantCountMessage, int](bus, qry); err != nil {
		t.Fatalf("attach query: %v", err)
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize bus: %v", err)
	}

	count, err := Query[grantCountMessage, int](context.Background(), grantCountMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected query result 3, got %d", count)
	}
}

func TestBusQueueResolverMirrorsCommand(t *testing.T) {
	bus := NewBus()
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queuedCrawlMessage](func(context.Context, queuedCrawlMessage) error { return nil })

	if err := bus.AddQueueResolver("crawl-queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if _, err := AttachCommand[queuedCrawlMessage](bus, cmd); err != nil {
		t.Fatalf("attach command: %v", err)
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize bus: %v", err)
	}

	if _, ok := queueRegistry.Get("workspace_sync.command.crawl.queued"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}
