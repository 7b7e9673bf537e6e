// Package events fans out optimization events to live subscribers.
package events

import (
    "sync"
    "time"
)

// Event types published by the fleet service.
const (
    TypeRouteOptimized = "route.optimized"
    TypeRouteApplied   = "route.applied"
    TypeBatchCompleted = "batch.completed"
)

type Event struct {
    Type string         `json:"type"`
    TS   string         `json:"ts"`
    Data map[string]any `json:"data"`
}

func NewEvent(typ string, data map[string]any) Event {
    return Event{Type: typ, TS: time.Now().UTC().Format(time.RFC3339), Data: data}
}

// Publisher is the write side used by services.
type Publisher interface {
    Publish(topic string, evt Event)
}

// EventBroker delivers events per topic. Topics come from RouteTopic or BatchTopic.
type EventBroker interface {
    Publisher
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
}

// BatchTopic is the topic carrying a tenant's batch summaries.
func BatchTopic(tenantID string) string { return "batch:" + tenantID }

// RouteTopic is the topic carrying one route's events. Route IDs are only unique per tenant.
func RouteTopic(tenantID, routeID string) string { return "route:" + tenantID + "/" + routeID }

// Broker is the in-process EventBroker. Slow subscribers drop events instead of blocking publishers.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan Event]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[topic]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, topic) }
    close(ch)
}

func (b *Broker) Publish(topic string, evt Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for ch := range b.subs[topic] {
        select { case ch <- evt: default: }
    }
}
