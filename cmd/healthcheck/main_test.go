package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer healthy.Close()
	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	if got := check(healthy.URL, time.Second); got != 0 {
		t.Errorf("healthy: exit %d", got)
	}
	if got := check(unhealthy.URL, time.Second); got != 1 {
		t.Errorf("unhealthy: exit %d", got)
	}
	if got := check("http://127.0.0.1:1/healthz", time.Second); got != 1 {
		t.Errorf("unreachable: exit %d", got)
	}
}
