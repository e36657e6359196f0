// internal/bus/bus.go
package bus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel names. Each durable command/event row insert fires a notification
// on one of these; the payload carries ids only and consumers pull the
// authoritative row themselves.
const (
	ChanTableCreated = "table_created"
	ChanTableClosed  = "table_closed"
	ChanTableCmd     = "table_cmd"
	ChanTableMsg     = "table_msg"
)

// Notification is the decoded wake-up a listener hands to its subscribers.
type Notification struct {
	Channel string
	TableID int64
	RowID   int64
}

// Handler is invoked once per received notification. Delivery is
// at-least-once; handlers must resolve the row by its monotonic id and
// tolerate duplicates.
type Handler func(ctx context.Context, n Notification)

// Notifier is the publish side of the bus. The concrete implementation
// rides on pg_notify; tests inject fakes.
type Notifier interface {
	Publish(ctx context.Context, channel string, tableID, rowID int64) error
}

// EncodePayload packs the identifying ids into a notify payload.
func EncodePayload(tableID, rowID int64) string {
	return strconv.FormatInt(tableID, 10) + ":" + strconv.FormatInt(rowID, 10)
}

// ParsePayload decodes a notify payload back into a Notification.
func ParsePayload(channel, payload string) (Notification, error) {
	tablePart, rowPart, ok := strings.Cut(payload, ":")
	if !ok {
		return Notification{}, fmt.Errorf("malformed bus payload %q on %s", payload, channel)
	}
	tableID, err := strconv.ParseInt(tablePart, 10, 64)
	if err != nil {
		return Notification{}, fmt.Errorf("bad table id in bus payload %q: %w", payload, err)
	}
	rowID, err := strconv.ParseInt(rowPart, 10, 64)
	if err != nil {
		return Notification{}, fmt.Errorf("bad row id in bus payload %q: %w", payload, err)
	}
	return Notification{Channel: channel, TableID: tableID, RowID: rowID}, nil
}

// Bus publishes notifications through Postgres. Durability comes from the
// command/event rows themselves; the notify is a best-effort wake-up.
type Bus struct {
	pool *pgxpool.Pool
}

// New returns a Bus publishing over the given pool.
func New(pool *pgxpool.Pool) *Bus {
	return &Bus{pool: pool}
}

// Publish fires a notification on channel for the given row.
func (b *Bus) Publish(ctx context.Context, channel string, tableID, rowID int64) error {
	_, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, EncodePayload(tableID, rowID))
	if err != nil {
		return fmt.Errorf("pg_notify %s: %w", channel, err)
	}
	return nil
}
