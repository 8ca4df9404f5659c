// Package history stores the recent messages of each chat group so they can
// be replayed to clients that join the group. Two implementations are
// provided: an in-memory store backed by go-cache and a Redis-backed store.
package history

import "context"

// Store is an interface for bounded per-group message history.
// Implementations must be safe for concurrent use; each group keeps at most
// a fixed number of lines and entries expire after the configured TTL.
type Store interface {
	// Append records one formatted message line for a group, evicting the
	// oldest line once the group is at capacity.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - group: The group name
	//   - line: The formatted message line to record
	//
	// Returns:
	//   - An error if the operation fails
	Append(ctx context.Context, group string, line string) error

	// Recent returns a group's stored lines in the order they were appended,
	// oldest first. A group with no history yields an empty slice.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - group: The group name
	//
	// Returns:
	//   - The stored lines, oldest first
	//   - An error if the operation fails
	Recent(ctx context.Context, group string) ([]string, error)
}
