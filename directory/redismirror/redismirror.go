// Package redismirror replicates a directory into Redis.
//
// Every thing is stored as a hash holding its JSON-encoded descriptor and properties, the set of
// thing ids is kept alongside, and every change is published as JSON on a channel.
package redismirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/go-packedserial/board"
	"github.com/arloliu/go-packedserial/directory"
)

// Redis key design:
//
//	{prefix}thing:{thingID}  -> hash {board, type, name, descriptor, properties}
//	{prefix}things           -> set of thing ids
//	{prefix}changes          -> pub/sub channel of Change JSON
const (
	DefaultPrefix = "packedserial:"

	keyThingPrefix = "thing:"
	keyThings      = "things"
	channelChanges = "changes"
)

// Mirror implements directory.Mirror on a go-redis client.
type Mirror struct {
	client redis.UniversalClient
	prefix string
}

var _ directory.Mirror = (*Mirror)(nil)

// New creates a mirror writing keys under prefix. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Mirror {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Mirror{client: client, prefix: prefix}
}

// ThingKey returns the hash key of a thing.
func (m *Mirror) ThingKey(thingID string) string {
	return m.prefix + keyThingPrefix + thingID
}

// ThingsKey returns the key of the thing id set.
func (m *Mirror) ThingsKey() string {
	return m.prefix + keyThings
}

// Channel returns the change channel name.
func (m *Mirror) Channel() string {
	return m.prefix + channelChanges
}

// PutThing stores the thing hash and registers its id.
func (m *Mirror) PutThing(ctx context.Context, thing board.ThingSnapshot) error {
	fields, err := thingFields(thing)
	if err != nil {
		return err
	}

	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, m.ThingKey(thing.ID), fields)
		pipe.SAdd(ctx, m.ThingsKey(), thing.ID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("redismirror: put %s: %w", thing.ID, err)
	}

	return nil
}

// DeleteThing removes the thing hash and its id.
func (m *Mirror) DeleteThing(ctx context.Context, thingID string) error {
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.ThingKey(thingID))
		pipe.SRem(ctx, m.ThingsKey(), thingID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("redismirror: delete %s: %w", thingID, err)
	}

	return nil
}

// Publish sends the change on the change channel.
func (m *Mirror) Publish(ctx context.Context, change directory.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("redismirror: encode change: %w", err)
	}

	if err := m.client.Publish(ctx, m.Channel(), data).Err(); err != nil {
		return fmt.Errorf("redismirror: publish: %w", err)
	}

	return nil
}

// LoadThing reads a thing back from its hash.
func (m *Mirror) LoadThing(ctx context.Context, thingID string) (board.ThingSnapshot, error) {
	var thing board.ThingSnapshot

	data, err := m.client.HGet(ctx, m.ThingKey(thingID), "descriptor").Bytes()
	if err != nil {
		return thing, fmt.Errorf("redismirror: load %s: %w", thingID, err)
	}
	if err := json.Unmarshal(data, &thing.ThingDescriptor); err != nil {
		return thing, fmt.Errorf("redismirror: decode %s: %w", thingID, err)
	}

	data, err = m.client.HGet(ctx, m.ThingKey(thingID), "properties").Bytes()
	if err != nil {
		return thing, fmt.Errorf("redismirror: load %s properties: %w", thingID, err)
	}
	if err := json.Unmarshal(data, &thing.Properties); err != nil {
		return thing, fmt.Errorf("redismirror: decode %s properties: %w", thingID, err)
	}

	return thing, nil
}

func thingFields(thing board.ThingSnapshot) (map[string]any, error) {
	desc, err := json.Marshal(thing.ThingDescriptor)
	if err != nil {
		return nil, fmt.Errorf("redismirror: encode %s: %w", thing.ID, err)
	}

	props := thing.Properties
	if props == nil {
		props = []board.PropertyDescriptor{}
	}

	propData, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("redismirror: encode %s properties: %w", thing.ID, err)
	}

	return map[string]any{
		"board":      thing.BoardID,
		"type":       thing.TypeName,
		"name":       thing.Name,
		"descriptor": string(desc),
		"properties": string(propData),
	}, nil
}
