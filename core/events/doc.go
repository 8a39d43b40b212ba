// Package events defines the simulation events emitted on the event bus.
//
// Available event types:
//   - TickEvent: immutable snapshot taken after every tick
//   - AwardEvent: a task awarded by the depot
//   - DeliveryEvent: a package dropped off
//   - CompletedEvent: the run finished, failed or was stopped
package events
