package circulation

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/store"
	"lendinglibrary/internal/store/memory"
	"lendinglibrary/internal/store/sqlstore"
)

func newTestRouter(t *testing.T, st store.Store) http.Handler {
	t.Helper()
	f := newFixture(t, st)
	h := NewHandler(f.svc, slog.New(slog.DiscardHandler))

	r := chi.NewRouter()
	h.Register(r)
	r.Route("/members", h.MemberRoutes)
	return r
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	m := domain.Member{Username: "ana", LoanIDs: []int64{}}
	require.NoError(t, st.Members().Save(ctx, &m))
	b := domain.Book{Title: "Kindred", AuthorID: 1}
	require.NoError(t, st.Books().Save(ctx, &b))
}

func TestHandlerLoanLifecycle(t *testing.T) {
	st := memory.New()
	seed(t, st)
	h := newTestRouter(t, st)

	rec := send(h, http.MethodPost, "/loans", `{"member_id":1,"book_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1,"member_id":1,"book_id":1,"lend_date":"2024-03-10","return_date":"2024-03-17"}`, rec.Body.String())

	rec = send(h, http.MethodGet, "/members/1/loans", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"member_id":1,"book_id":1,"lend_date":"2024-03-10","return_date":"2024-03-17"}]`, rec.Body.String())

	rec = send(h, http.MethodPut, "/loans/1", `{"member_id":1,"book_id":1,"lend_date":"2024-03-11"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1,"member_id":1,"book_id":1,"lend_date":"2024-03-11","return_date":null}`, rec.Body.String())

	rec = send(h, http.MethodDelete, "/loans/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = send(h, http.MethodGet, "/loans/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Loan not found with id 1","kind":"Loan","id":1}`, rec.Body.String())

	rec = send(h, http.MethodGet, "/loans", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandlerLoanLimitIsPlainText(t *testing.T) {
	st := memory.New()
	seed(t, st)
	h := newTestRouter(t, st)

	for range domain.MaxActiveLoans {
		require.Equal(t, http.StatusOK, send(h, http.MethodPost, "/loans", `{"member_id":1,"book_id":1}`).Code)
	}

	rec := send(h, http.MethodPost, "/loans", `{"member_id":1,"book_id":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Member already has 5 loans", rec.Body.String())
}

func TestHandlerMissingReferences(t *testing.T) {
	st := memory.New()
	seed(t, st)
	h := newTestRouter(t, st)

	rec := send(h, http.MethodPost, "/loans", `{"member_id":9,"book_id":9}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"Member"`)

	rec = send(h, http.MethodPost, "/loans", `{"member_id":1,"book_id":9}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"Book"`)

	rec = send(h, http.MethodGet, "/members/9/loans", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(h, http.MethodPost, "/loans", `{"member_id":1,"book_id":1,"lend_date":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// The same lifecycle against SQLite checks the mirror survives the
// member_loans round trip.
func TestLoanLifecycleOnSQLite(t *testing.T) {
	ctx := context.Background()
	st, err := sqlstore.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	f := newFixture(t, st)
	m := f.member(t)
	b := f.book(t)

	var ids []int64
	for range domain.MaxActiveLoans {
		loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
		require.NoError(t, err)
		ids = append(ids, loan.ID)
	}
	assert.Equal(t, ids, f.storedMember(t, m.ID).LoanIDs)

	_, err = f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
	assert.ErrorIs(t, err, domain.ErrLoanLimitExceeded)

	require.NoError(t, f.svc.DeleteLoan(ctx, ids[2]))
	assert.Equal(t, []int64{ids[0], ids[1], ids[3], ids[4]}, f.storedMember(t, m.ID).LoanIDs)

	loans, err := f.svc.MemberLoans(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, loans, domain.MaxActiveLoans-1)
}
