package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/server"
	"lendinglibrary/internal/store/memory"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoanCommands(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := domain.Member{Username: "ana", LoanIDs: []int64{}}
	require.NoError(t, st.Members().Save(ctx, &m))
	b := domain.Book{Title: "Kindred", AuthorID: 1}
	require.NoError(t, st.Books().Save(ctx, &b))

	h, err := server.NewRouter(st, server.Options{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()
	t.Setenv("LIBRARY_SERVER", srv.URL)
	t.Setenv("DB_DRIVER", "memory")

	out, err := run(t, "loan", "create", "--member", "1", "--book", "1", "--lend-date", "2024-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, `"return_date": "2024-03-08"`)

	out, err = run(t, "loan", "list", "--member", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"member_id": 1`)

	_, err = run(t, "loan", "create", "--member", "9", "--book", "1")
	assert.EqualError(t, err, "Member not found with id 9")

	_, err = run(t, "loan", "create", "--member", "1", "--book", "1", "--lend-date", "March")
	assert.Error(t, err)

	out, err = run(t, "loan", "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "loan 1 deleted\n", out)

	_, err = run(t, "loan", "delete", "1")
	assert.EqualError(t, err, "Loan not found with id 1")

	_, err = run(t, "loan", "delete", "one")
	assert.EqualError(t, err, `invalid loan id "one"`)
}

func TestMigrateRejectsMemoryDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "memory driver")
}
