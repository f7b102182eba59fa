package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/storage"
)

// chunkStore keeps payloads in the chunks table, split into fixed-size
// rows. Every payload has at least one row so an empty payload can be told
// apart from a missing one.
type chunkStore struct {
	db *DB
}

var _ storage.Provider = (*chunkStore)(nil)

func (s *chunkStore) Write(ctx context.Context, collection, ref string, r io.Reader) (int64, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin chunk write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (collection, object_id, n, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("catalog: prepare chunk write: %w", err)
	}
	defer stmt.Close()

	buf := make([]byte, s.db.chunkSize)
	var total int64
	for n := 0; ; n++ {
		read, rerr := io.ReadFull(r, buf)
		if read > 0 || n == 0 {
			if _, err := stmt.ExecContext(ctx, collection, ref, n, buf[:read]); err != nil {
				return 0, fmt.Errorf("catalog: write chunk %d: %w", n, err)
			}
			total += int64(read)
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return 0, fmt.Errorf("catalog: read payload: %w", rerr)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit chunks: %w", err)
	}
	return total, nil
}

func (s *chunkStore) Open(ctx context.Context, collection, ref string) (io.ReadCloser, error) {
	var one int
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM chunks WHERE collection = ? AND object_id = ? AND n = 0`,
		collection, ref).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: payload %s: %w", ref, blobstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: payload %s: %w", ref, err)
	}
	return &chunkReader{ctx: ctx, conn: s.db.conn, collection: collection, ref: ref}, nil
}

func (s *chunkStore) Delete(ctx context.Context, collection, ref string) error {
	res, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM chunks WHERE collection = ? AND object_id = ?`, collection, ref)
	if err != nil {
		return fmt.Errorf("catalog: delete payload %s: %w", ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: delete payload %s: %w", ref, blobstore.ErrNotFound)
	}
	return nil
}

// chunkReader loads one chunk at a time.
type chunkReader struct {
	ctx        context.Context
	conn       *sql.DB
	collection string
	ref        string
	next       int
	buf        []byte
	done       bool
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.done {
			return 0, io.EOF
		}
		var data []byte
		err := c.conn.QueryRowContext(c.ctx,
			`SELECT data FROM chunks WHERE collection = ? AND object_id = ? AND n = ?`,
			c.collection, c.ref, c.next).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			c.done = true
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("catalog: read chunk %d of %s: %w", c.next, c.ref, err)
		}
		c.next++
		c.buf = data
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *chunkReader) Close() error {
	c.done = true
	c.buf = nil
	return nil
}
