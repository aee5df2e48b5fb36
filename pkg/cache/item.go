// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package cache

import (
	"context"
	"time"
)

// ID identifies a registered item. IDs start at 1 and are never reused.
type ID int64

// Forever is the lifetime of an item that never expires.
const Forever time.Duration = -1

// DisposeReason tells an item why it is being removed.
type DisposeReason int

const (
	// DisposeManual is used when an item is removed through Dispose or DisposeItem.
	DisposeManual DisposeReason = iota
	// DisposeExpired is used when a tick pass finds the item expired.
	DisposeExpired
)

func (r DisposeReason) String() string {
	switch r {
	case DisposeManual:
		return "manual"
	case DisposeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Cachable is the unit stored in a Cache.
//
// Most implementations embed Base and override only the hooks they need.
type Cachable interface {
	// ID returns the id assigned at registration, or 0 before registration.
	ID() ID
	// SetID stores the id assigned by the cache. Called once by Register.
	SetID(id ID)
	// ExpireTime returns creation time plus lifetime, or the zero time for
	// items that never expire.
	ExpireTime() time.Time
	// OnRegister is invoked once after the item was inserted.
	OnRegister(c *Cache)
	// Tick is invoked once per maintenance pass while the item is live.
	Tick(ctx context.Context) error
	// OnDispose is invoked when the item is removed manually or found
	// expired. For expired items, returning false keeps the item registered.
	OnDispose(reason DisposeReason) bool
}

// Base carries the identity and expiry of an item and provides no-op hooks.
type Base struct {
	id        ID
	createdAt time.Time
	lifetime  time.Duration
}

// NewBase returns a Base created now with the given lifetime.
// A negative lifetime means the item never expires.
func NewBase(lifetime time.Duration) Base {
	if lifetime < 0 {
		lifetime = Forever
	}
	return Base{
		createdAt: time.Now(),
		lifetime:  lifetime,
	}
}

// ID returns the id assigned at registration.
func (b *Base) ID() ID { return b.id }

// SetID stores the id assigned at registration.
func (b *Base) SetID(id ID) { b.id = id }

// CreatedAt returns the creation time.
func (b *Base) CreatedAt() time.Time { return b.createdAt }

// Lifetime returns the lifetime, or Forever.
func (b *Base) Lifetime() time.Duration { return b.lifetime }

// ExpireTime returns createdAt+lifetime, or the zero time if the item never expires.
func (b *Base) ExpireTime() time.Time {
	if b.lifetime < 0 || b.createdAt.IsZero() {
		return time.Time{}
	}
	return b.createdAt.Add(b.lifetime)
}

// OnRegister does nothing.
func (b *Base) OnRegister(*Cache) {}

// Tick does nothing.
func (b *Base) Tick(context.Context) error { return nil }

// OnDispose always allows removal.
func (b *Base) OnDispose(DisposeReason) bool { return true }

// Object is an item holding a single value.
type Object[T any] struct {
	Base
	value T
}

// NewObject wraps value in an item with the given lifetime.
func NewObject[T any](value T, lifetime time.Duration) *Object[T] {
	return &Object[T]{
		Base:  NewBase(lifetime),
		value: value,
	}
}

// Get returns the wrapped value.
func (o *Object[T]) Get() T {
	return o.value
}

// expired reports whether item is due for disposal at now.
func expired(item Cachable, now time.Time) bool {
	exp := item.ExpireTime()
	return !exp.IsZero() && !now.Before(exp)
}
