package model

import (
	"fmt"
	"time"
)

// NotificationStatus represents the delivery state of a scheduled notification.
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusDelivered NotificationStatus = "delivered"
)

// ScheduledNotification is a notification queued for delivery at a future
// instant. Status only ever moves pending -> delivered.
type ScheduledNotification struct {
	ID            string
	Title         string
	Body          string
	Icon          string
	Tag           string
	Data          map[string]string
	ScheduledTime time.Time
	Status        NotificationStatus
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}

// Validate checks the notification is well formed.
func (n ScheduledNotification) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if n.Title == "" {
		return fmt.Errorf("title is required: %w", ErrNotValid)
	}
	if n.ScheduledTime.IsZero() {
		return fmt.Errorf("scheduled time is required: %w", ErrNotValid)
	}
	if n.Status != NotificationStatusPending && n.Status != NotificationStatusDelivered {
		return fmt.Errorf("unknown status %q: %w", string(n.Status), ErrNotValid)
	}

	return nil
}

// Due returns true if the notification should be delivered at the given instant.
func (n ScheduledNotification) Due(now time.Time) bool {
	return n.Status == NotificationStatusPending && !n.ScheduledTime.After(now)
}

// NotificationOptions are the display hints for a rendered notification.
// The tag lets clients collapse duplicate displays of the same notification.
type NotificationOptions struct {
	Title string            `json:"title"`
	Body  string            `json:"body,omitempty"`
	Icon  string            `json:"icon,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Validate checks the options are displayable.
func (o NotificationOptions) Validate() error {
	if o.Title == "" {
		return fmt.Errorf("title is required: %w", ErrNotValid)
	}

	return nil
}

// DisplayOptions returns the display hints for a scheduled notification.
func (n ScheduledNotification) DisplayOptions() NotificationOptions {
	tag := n.Tag
	if tag == "" {
		// Stable fallback so repeat displays of the same notification
		// collapse on the client.
		tag = n.ID
	}

	return NotificationOptions{
		Title: n.Title,
		Body:  n.Body,
		Icon:  n.Icon,
		Tag:   tag,
		Data:  n.Data,
	}
}
