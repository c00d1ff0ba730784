package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "bookshop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.Seed(context.Background()))
	return repo
}

func TestAuthorRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateAuthor(ctx, &Author{ID: 200, Name: "Robert Jordan"}))

	a, err := repo.GetAuthor(ctx, 200)
	require.NoError(t, err)
	require.Equal(t, Author{ID: 200, Name: "Robert Jordan"}, *a)
}

func TestCreateDuplicateKeyRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.CreateAuthor(ctx, &Author{ID: 101, Name: "Impostor"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	// the original row is untouched
	a, err := repo.GetAuthor(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, "Emily Brontë", a.Name)
}

func TestUpdateIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b := &Book{ID: 201, Title: "Wuthering Heights", AuthorID: 101, Stock: 42}
	require.NoError(t, repo.UpdateBook(ctx, b))
	require.NoError(t, repo.UpdateBook(ctx, b))

	got, err := repo.GetBook(ctx, 201)
	require.NoError(t, err)
	require.Equal(t, *b, *got)
}

func TestUpdateMissingEntity(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.UpdateAuthor(context.Background(), &Author{ID: 9999, Name: "Nobody"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsTerminal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateAuthor(ctx, &Author{ID: 300, Name: "Short Lived"}))
	require.NoError(t, repo.DeleteAuthor(ctx, 300))

	_, err := repo.GetAuthor(ctx, 300)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.DeleteAuthor(ctx, 300), ErrNotFound)
}

func TestCreateOrderDecrementsStock(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateOrder(ctx, &Order{ID: "c13d3eec-942e-470d-97b3-e03322136636", BookID: 201, Amount: 12}))

	b, err := repo.GetBook(ctx, 201)
	require.NoError(t, err)
	require.EqualValues(t, 88, b.Stock)
}

func TestCreateOrderSoldOut(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpdateBook(ctx, &Book{ID: 201, Title: "Wuthering Heights", AuthorID: 101, Stock: 0}))

	err := repo.CreateOrder(ctx, &Order{ID: "11111111-1111-4111-8111-111111111111", BookID: 201, Amount: 1})
	require.ErrorIs(t, err, ErrSoldOut)

	// no order row was left behind
	_, err = repo.GetOrder(ctx, "11111111-1111-4111-8111-111111111111")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrderMissingBookIsSoldOut(t *testing.T) {
	// the create path has no reference check on purpose: a nonexistent book
	// fails the decrement guard, same signal as exhausted stock
	repo := newTestRepo(t)
	err := repo.CreateOrder(context.Background(), &Order{ID: "22222222-2222-4222-8222-222222222222", BookID: 0, Amount: 1})
	require.ErrorIs(t, err, ErrSoldOut)
}

func TestCreateOrderDuplicateLeavesStockAlone(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	o := &Order{ID: "33333333-3333-4333-8333-333333333333", BookID: 201, Amount: 10}
	require.NoError(t, repo.CreateOrder(ctx, o))
	require.ErrorIs(t, repo.CreateOrder(ctx, o), ErrAlreadyExists)

	b, err := repo.GetBook(ctx, 201)
	require.NoError(t, err)
	require.EqualValues(t, 90, b.Stock)
}

func TestUpdateOrderReferenceIntegrity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	o := &Order{ID: "44444444-4444-4444-8444-444444444444", BookID: 201, Amount: 2}
	require.NoError(t, repo.CreateOrder(ctx, o))

	o.BookID = 0
	require.ErrorIs(t, repo.UpdateOrder(ctx, o), ErrReferenceIntegrity)

	// update does not flow through to stock
	o.BookID = 207
	o.Amount = 5
	require.NoError(t, repo.UpdateOrder(ctx, o))
	b, err := repo.GetBook(ctx, 207)
	require.NoError(t, err)
	require.EqualValues(t, 11, b.Stock)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpdateBook(ctx, &Book{ID: 201, Title: "Wuthering Heights", AuthorID: 101, Stock: 5}))

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.CreateOrder(ctx, &Order{ID: uuid.NewString(), BookID: 201, Amount: 1})
		}()
	}
	wg.Wait()
	close(results)

	var ok, soldOut int
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, ErrSoldOut)
			soldOut++
		}
	}
	require.Equal(t, 5, ok)
	require.Equal(t, workers-5, soldOut)

	b, err := repo.GetBook(ctx, 201)
	require.NoError(t, err)
	require.EqualValues(t, 0, b.Stock)
}
