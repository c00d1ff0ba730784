package main

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Repository owns the three catalog tables. All access goes through it; the
// single connection plus transactions serialize mutations so a reservation
// can never race another one into negative stock.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	// busy_timeout avoids "database is locked" under concurrent callers
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(2 * time.Minute)
	db.SetMaxOpenConns(1)

	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS authors(
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS books(
  id        INTEGER PRIMARY KEY,
  title     TEXT NOT NULL DEFAULT '',
  author_id INTEGER NOT NULL DEFAULT 0,
  stock     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);
CREATE TABLE IF NOT EXISTS orders(
  id      TEXT PRIMARY KEY,
  book_id INTEGER NOT NULL,
  amount  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_book ON orders(book_id);
`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *Repository) Close() error { return r.db.Close() }

// Seed loads the sample catalog. Existing rows are left untouched.
func (r *Repository) Seed(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	authors := [][]any{
		{101, "Emily Brontë"},
		{107, "Charlote Brontë"},
		{150, "Edgar Allen Poe"},
		{170, "Richard Carpenter"},
	}
	for _, v := range authors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO authors(id,name) VALUES(?,?) ON CONFLICT(id) DO NOTHING`, v...); err != nil {
			return err
		}
	}

	books := [][]any{
		{201, "Wuthering Heights", 101, 100},
		{207, "Jane Eyre", 107, 11},
		{251, "The Raven", 150, 333},
		{252, "Eleonora", 150, 555},
		{271, "Catweazle", 170, 22},
	}
	for _, v := range books {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO books(id,title,author_id,stock) VALUES(?,?,?,?) ON CONFLICT(id) DO NOTHING`, v...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- Authors ----

func (r *Repository) ListAuthors(ctx context.Context) ([]Author, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,name FROM authors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) GetAuthor(ctx context.Context, id int64) (*Author, error) {
	var a Author
	err := r.db.QueryRowContext(ctx, `SELECT id,name FROM authors WHERE id=?`, id).
		Scan(&a.ID, &a.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) CreateAuthor(ctx context.Context, a *Author) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := keyTaken(tx.QueryRowContext(ctx, `SELECT 1 FROM authors WHERE id=?`, a.ID)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO authors(id,name) VALUES(?,?)`, a.ID, a.Name); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) UpdateAuthor(ctx context.Context, a *Author) error {
	res, err := r.db.ExecContext(ctx, `UPDATE authors SET name=? WHERE id=?`, a.Name, a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Repository) DeleteAuthor(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM authors WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---- Books ----

func (r *Repository) ListBooks(ctx context.Context) ([]Book, error) {
	return r.scanBooks(ctx, `SELECT id,title,author_id,stock FROM books ORDER BY id`)
}

func (r *Repository) ListBooksByAuthor(ctx context.Context, authorID int64) ([]Book, error) {
	return r.scanBooks(ctx, `SELECT id,title,author_id,stock FROM books WHERE author_id=? ORDER BY id`, authorID)
}

func (r *Repository) scanBooks(ctx context.Context, q string, args ...any) ([]Book, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.AuthorID, &b.Stock); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := r.db.QueryRowContext(ctx, `SELECT id,title,author_id,stock FROM books WHERE id=?`, id).
		Scan(&b.ID, &b.Title, &b.AuthorID, &b.Stock)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) CreateBook(ctx context.Context, b *Book) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := keyTaken(tx.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id=?`, b.ID)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO books(id,title,author_id,stock) VALUES(?,?,?,?)`,
		b.ID, b.Title, b.AuthorID, b.Stock); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) UpdateBook(ctx context.Context, b *Book) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE books SET title=?, author_id=?, stock=? WHERE id=?`,
		b.Title, b.AuthorID, b.Stock, b.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Repository) DeleteBook(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---- Orders ----

func (r *Repository) ListOrders(ctx context.Context) ([]Order, error) {
	return r.scanOrders(ctx, `SELECT id,book_id,amount FROM orders ORDER BY id`)
}

func (r *Repository) ListOrdersByBook(ctx context.Context, bookID int64) ([]Order, error) {
	return r.scanOrders(ctx, `SELECT id,book_id,amount FROM orders WHERE book_id=? ORDER BY id`, bookID)
}

func (r *Repository) scanOrders(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BookID, &o.Amount); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `SELECT id,book_id,amount FROM orders WHERE id=?`, id).
		Scan(&o.ID, &o.BookID, &o.Amount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrder inserts the order and reserves stock in one transaction.
// The decrement guards on stock >= amount, so a missing book and an
// exhausted one both surface as ErrSoldOut.
func (r *Repository) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := keyTaken(tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id=?`, o.ID)); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE books SET stock=stock-? WHERE id=? AND stock>=?`,
		o.Amount, o.BookID, o.Amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSoldOut
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders(id,book_id,amount) VALUES(?,?,?)`,
		o.ID, o.BookID, o.Amount); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateOrder replaces the non-key fields. The new book_ID must resolve to
// an existing book; stock is not re-adjusted on update.
func (r *Repository) UpdateOrder(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id=?`, o.ID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id=?`, o.BookID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrReferenceIntegrity
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET book_id=?, amount=? WHERE id=?`,
		o.BookID, o.Amount, o.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) DeleteOrder(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---- helpers ----

func keyTaken(row *sql.Row) error {
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	return ErrAlreadyExists
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
