package we

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
)

type CommandHandlers[T any] map[CommandName]CommandHandler[T]

type Dispatcher[T any] interface {
	Dispatch(ctx context.Context, entity Entity[T], command Command) (bool, error)
}

type RoutedDispatcher[T any] struct {
	Publish  EventAppender
	Handlers CommandHandlers[T]
}

func (d *RoutedDispatcher[T]) Dispatch(ctx context.Context, entity Entity[T], command Command) (bool, error) {
	commandName := CommandNameOf(command)

	ctx, span := otel.Tracer(tracerName).Start(ctx, fmt.Sprintf("dispatch %s", commandName))
	defer span.End()

	handler := d.Handlers[commandName]
	if handler == nil {
		return false, CommandNotFound(commandName)
	}

	tracking := &trackingPublisher{publish: d.Publish, aggregate: entity.Aggregate, version: entity.Version}
	if err := handler.HandleCommand(ctx, command, entity, tracking.Publish); err != nil {
		return tracking.published, err
	}

	return tracking.published, nil
}

func CommandNotFound(command CommandName) CommandNotFoundError {
	return CommandNotFoundError{Command: command}
}

type CommandNotFoundError struct {
	Command CommandName
}

func (e CommandNotFoundError) Error() string {
	return fmt.Sprintf("unknown command: %s", e.Command)
}

// trackingPublisher pins appends to the entity's aggregate to the version the handler saw,
// so a concurrent writer turns into a version conflict instead of a lost update.
type trackingPublisher struct {
	publish   EventAppender
	aggregate AggregateId
	version   Version
	published bool
}

func (p *trackingPublisher) Publish(ctx context.Context, id AggregateId, options AppendOptions, events ...DomainEvent) (Sequence, error) {
	pinned := id == p.aggregate
	if pinned && options.ExpectedVersion.IsAny() {
		options.ExpectedVersion = ExactVersion(p.version)
	}

	sequence, err := p.publish(ctx, id, options, events...)
	if err != nil {
		return sequence, err
	}

	if pinned {
		p.version += Version(len(events))
	}
	p.published = p.published || len(events) > 0

	return sequence, nil
}
