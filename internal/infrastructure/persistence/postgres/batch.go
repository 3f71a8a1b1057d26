package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DefaultChunkSize keeps every write transaction under the per-transaction
// operation limit the lifecycle jobs were sized against.
const DefaultChunkSize = 450

// Chunk splits items into consecutive slices of at most size elements.
// A non-positive size falls back to DefaultChunkSize.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// writeChunked runs fn for each chunk in its own transaction and collects what
// fn reports as written. Only chunks that committed contribute to the result,
// and that result is returned alongside the error when a later chunk fails.
func writeChunked[T, R any](ctx context.Context, conn *Connection, items []T, size int, fn func(pgx.Tx, []T) ([]R, error)) ([]R, error) {
	var written []R
	for i, chunk := range Chunk(items, size) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		var out []R
		err := conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			var err error
			out, err = fn(tx, chunk)
			return err
		})
		if err != nil {
			return written, fmt.Errorf("chunk %d: %w", i, err)
		}
		written = append(written, out...)
	}
	return written, nil
}
