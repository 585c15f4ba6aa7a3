package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendinglibrary/internal/chaos"
	"lendinglibrary/internal/store/memory"
)

var discard = slog.New(slog.DiscardHandler)

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRouterEndToEnd(t *testing.T) {
	h, err := NewRouter(memory.New(), Options{Logger: discard})
	require.NoError(t, err)

	steps := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodPost, "/authors", `{"name":"Octavia E. Butler","date_of_birth":"1947-06-22"}`, http.StatusOK},
		{http.MethodPost, "/books", `{"title":"Kindred","genre":"sf","price":"15.00","author_id":1}`, http.StatusOK},
		{http.MethodPost, "/members", `{"username":"ana"}`, http.StatusOK},
		{http.MethodPost, "/loans", `{"member_id":1,"book_id":1}`, http.StatusOK},
		{http.MethodGet, "/members/1/loans", "", http.StatusOK},
		{http.MethodGet, "/members/1", "", http.StatusOK},
		{http.MethodDelete, "/loans/1", "", http.StatusNoContent},
		{http.MethodGet, "/loans/1", "", http.StatusNotFound},
		{http.MethodDelete, "/members/1", "", http.StatusNoContent},
		{http.MethodGet, "/healthz", "", http.StatusOK},
	}
	for _, s := range steps {
		rec := send(h, s.method, s.path, s.body)
		require.Equal(t, s.status, rec.Code, "%s %s: %s", s.method, s.path, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestMemberMirrorOverHTTP(t *testing.T) {
	h, err := NewRouter(memory.New(), Options{Logger: discard})
	require.NoError(t, err)

	send(h, http.MethodPost, "/authors", `{"name":"a"}`)
	send(h, http.MethodPost, "/books", `{"title":"b","author_id":1}`)
	send(h, http.MethodPost, "/members", `{"username":"m"}`)
	send(h, http.MethodPost, "/loans", `{"member_id":1,"book_id":1}`)
	send(h, http.MethodPost, "/loans", `{"member_id":1,"book_id":1}`)

	rec := send(h, http.MethodGet, "/members/1", "")
	assert.Contains(t, rec.Body.String(), `"loan_ids":[1,2]`)

	send(h, http.MethodDelete, "/loans/1", "")
	rec = send(h, http.MethodGet, "/members/1", "")
	assert.Contains(t, rec.Body.String(), `"loan_ids":[2]`)
}

func TestHealthzReportsStoreFailure(t *testing.T) {
	h, err := NewRouter(chaos.Wrap(memory.New(), chaos.WithPingError(errors.New("connection refused"))), Options{Logger: discard})
	require.NoError(t, err)

	rec := send(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunShutsDownWhenContextEnds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, addr, http.NotFoundHandler(), time.Second, discard)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
