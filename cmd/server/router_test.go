package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"bordereau/pkg/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestHealthz(t *testing.T) {
	rr := testutil.Get(newRouter(discard, nil), "/healthz")

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "ok", testutil.UnmarshalResponse[map[string]string](t, rr)["status"])
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }

	t.Run("every backend answers", func(t *testing.T) {
		rr := testutil.Get(newRouter(discard, map[string]check{"postgres": ok, "redis": ok}), "/readyz")
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("a failing backend is reported", func(t *testing.T) {
		down := func(context.Context) error { return errors.New("connection refused") }
		rr := testutil.Get(newRouter(discard, map[string]check{"postgres": ok, "kafka": down}), "/readyz")

		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		report := testutil.UnmarshalResponse[map[string]string](t, rr)
		assert.Equal(t, "ok", report["postgres"])
		assert.Equal(t, "connection refused", report["kafka"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	rr := testutil.Get(newRouter(discard, nil), "/metrics")

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
