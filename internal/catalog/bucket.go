package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/starford/dirstore/internal/access"
	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/checksum"
)

const objectColumns = `id, key, is_dir, length, checksum, created_at`

// Bucket is one partition seen through a Conn.
type Bucket struct {
	conn *Conn
	name string
}

var _ blobstore.Bucket = (*Bucket)(nil)

func (b *Bucket) files() string  { return b.name + ".files" }
func (b *Bucket) chunks() string { return b.name + ".chunks" }

func (b *Bucket) rdb() *sql.DB { return b.conn.db.conn }

// Put stores the payload first and then records the entry, so a visible
// entry always has its payload.
func (b *Bucket) Put(ctx context.Context, key string, r io.Reader, meta blobstore.Metadata) (blobstore.ObjectRef, error) {
	if err := b.conn.check(b.files(), access.ActionInsert); err != nil {
		return "", err
	}
	if err := b.conn.check(b.chunks(), access.ActionInsert); err != nil {
		return "", err
	}

	ref := uuid.NewString()
	cr := checksum.NewReader(r)
	if _, err := b.conn.db.provider.Write(ctx, b.chunks(), ref, cr); err != nil {
		return "", fmt.Errorf("catalog: put %s: %w", key, err)
	}

	_, err := b.rdb().ExecContext(ctx,
		`INSERT INTO objects (id, db, bucket, key, is_dir, length, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ref, b.conn.database, b.name, key, meta.IsDir, cr.Len(), cr.Sum(), time.Now().UnixNano())
	if err != nil {
		if derr := b.conn.db.provider.Delete(context.WithoutCancel(ctx), b.chunks(), ref); derr != nil {
			b.conn.db.logger.Warn("catalog: orphaned payload",
				slog.String("ref", ref), slog.String("error", derr.Error()))
		}
		return "", fmt.Errorf("catalog: put %s: %w", key, err)
	}
	return blobstore.ObjectRef(ref), nil
}

// FindLatest returns the newest entry stored under key.
func (b *Bucket) FindLatest(ctx context.Context, key string) (blobstore.Object, bool, error) {
	if err := b.conn.check(b.files(), access.ActionFind); err != nil {
		return blobstore.Object{}, false, err
	}
	row := b.rdb().QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects
		 WHERE db = ? AND bucket = ? AND key = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		b.conn.database, b.name, key)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return blobstore.Object{}, false, nil
	}
	if err != nil {
		return blobstore.Object{}, false, fmt.Errorf("catalog: find %s: %w", key, err)
	}
	return obj, true, nil
}

// FindByPrefix streams matching entries straight from the cursor.
func (b *Bucket) FindByPrefix(ctx context.Context, prefix string) iter.Seq2[blobstore.Object, error] {
	return func(yield func(blobstore.Object, error) bool) {
		if err := b.conn.check(b.files(), access.ActionFind); err != nil {
			yield(blobstore.Object{}, err)
			return
		}
		rows, err := b.rdb().QueryContext(ctx,
			`SELECT `+objectColumns+` FROM objects
			 WHERE db = ? AND bucket = ? AND substr(key, 1, ?) = ?`,
			b.conn.database, b.name, utf8.RuneCountInString(prefix), prefix)
		if err != nil {
			yield(blobstore.Object{}, fmt.Errorf("catalog: find prefix %s: %w", prefix, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			obj, err := scanObject(rows)
			if err != nil {
				yield(blobstore.Object{}, err)
				return
			}
			if !yield(obj, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(blobstore.Object{}, fmt.Errorf("catalog: find prefix %s: %w", prefix, err))
		}
	}
}

// Stat looks up one entry by ref.
func (b *Bucket) Stat(ctx context.Context, ref blobstore.ObjectRef) (blobstore.Object, error) {
	if err := b.conn.check(b.files(), access.ActionFind); err != nil {
		return blobstore.Object{}, err
	}
	return b.stat(ctx, ref)
}

func (b *Bucket) stat(ctx context.Context, ref blobstore.ObjectRef) (blobstore.Object, error) {
	row := b.rdb().QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects WHERE id = ? AND db = ? AND bucket = ?`,
		string(ref), b.conn.database, b.name)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return blobstore.Object{}, fmt.Errorf("catalog: stat %s: %w", ref, blobstore.ErrNotFound)
	}
	if err != nil {
		return blobstore.Object{}, fmt.Errorf("catalog: stat %s: %w", ref, err)
	}
	return obj, nil
}

// Open streams the payload of ref.
func (b *Bucket) Open(ctx context.Context, ref blobstore.ObjectRef) (io.ReadCloser, error) {
	if err := b.conn.check(b.files(), access.ActionFind); err != nil {
		return nil, err
	}
	if err := b.conn.check(b.chunks(), access.ActionFind); err != nil {
		return nil, err
	}
	if _, err := b.stat(ctx, ref); err != nil {
		return nil, err
	}
	rc, err := b.conn.db.provider.Open(ctx, b.chunks(), string(ref))
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", ref, err)
	}
	return rc, nil
}

// Delete removes the entry and then its payload. A payload that is already
// gone is not an error.
func (b *Bucket) Delete(ctx context.Context, ref blobstore.ObjectRef) error {
	if err := b.conn.check(b.files(), access.ActionRemove); err != nil {
		return err
	}
	if err := b.conn.check(b.chunks(), access.ActionRemove); err != nil {
		return err
	}
	res, err := b.rdb().ExecContext(ctx,
		`DELETE FROM objects WHERE id = ? AND db = ? AND bucket = ?`,
		string(ref), b.conn.database, b.name)
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: delete %s: %w", ref, blobstore.ErrNotFound)
	}
	if err := b.conn.db.provider.Delete(ctx, b.chunks(), string(ref)); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("catalog: delete payload %s: %w", ref, err)
	}
	return nil
}

// Rename rewrites the key of one entry.
func (b *Bucket) Rename(ctx context.Context, ref blobstore.ObjectRef, newKey string) error {
	if err := b.conn.check(b.files(), access.ActionUpdate); err != nil {
		return err
	}
	res, err := b.rdb().ExecContext(ctx,
		`UPDATE objects SET key = ? WHERE id = ? AND db = ? AND bucket = ?`,
		newKey, string(ref), b.conn.database, b.name)
	if err != nil {
		return fmt.Errorf("catalog: rename %s: %w", ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: rename %s: %w", ref, blobstore.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(s rowScanner) (blobstore.Object, error) {
	var (
		obj   blobstore.Object
		id    string
		nanos int64
	)
	if err := s.Scan(&id, &obj.Key, &obj.IsDir, &obj.Length, &obj.Checksum, &nanos); err != nil {
		return blobstore.Object{}, err
	}
	obj.Ref = blobstore.ObjectRef(id)
	obj.CreatedAt = time.Unix(0, nanos).UTC()
	return obj, nil
}
