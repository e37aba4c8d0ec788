package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-taskboard/internal/metrics"
)

type seen struct {
	method string
	path   string
	query  string
	body   []byte
	header http.Header
}

func backend(t *testing.T, status int, respBody string) (*httptest.Server, *seen) {
	t.Helper()

	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.method = r.Method
		s.path = r.URL.EscapedPath()
		s.query = r.URL.RawQuery
		s.header = r.Header.Clone()
		s.body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)

	return srv, s
}

func TestForward_PostPassThrough(t *testing.T) {
	srv, s := backend(t, http.StatusCreated, `{"id":"t1","title":"Write docs"}`)
	f := NewForwarder(srv.URL + "/")

	in := json.RawMessage(`{"title":"Write docs","priority":2}`)
	resp, err := f.Forward(context.Background(), "/projects/{id}/tasks", Request{
		Method: http.MethodPost,
		Body:   in,
		Token:  "tok",
		Params: map[string]string{"id": "p 1"},
	})
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, s.method)
	require.Equal(t, "/projects/p%201/tasks", s.path)
	require.Equal(t, string(in), string(s.body))
	require.Equal(t, "application/json", s.header.Get("Content-Type"))
	require.Equal(t, "Bearer tok", s.header.Get("Authorization"))

	require.Equal(t, http.StatusCreated, resp.Status)
	require.True(t, resp.OK)
	require.JSONEq(t, `{"id":"t1","title":"Write docs"}`, string(resp.Data))
}

func TestForward_GetDropsBodyAndKeepsQuery(t *testing.T) {
	srv, s := backend(t, http.StatusOK, `[]`)
	f := NewForwarder(srv.URL)

	_, err := f.Forward(context.Background(), "/tasks", Request{
		Method: http.MethodGet,
		Body:   json.RawMessage(`{"ignored":true}`),
		Query:  url.Values{"status": {"done"}},
	})
	require.NoError(t, err)

	require.Empty(t, s.body)
	require.Equal(t, "status=done", s.query)
	require.Empty(t, s.header.Get("Authorization"))
}

func TestForward_ErrorStatusIsNotAnError(t *testing.T) {
	srv, _ := backend(t, http.StatusNotFound, `{"success":false,"message":"Project not found"}`)
	f := NewForwarder(srv.URL)

	resp, err := f.Forward(context.Background(), "/projects/{id}", Request{
		Method: http.MethodGet,
		Params: map[string]string{"id": "x"},
	})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.JSONEq(t, `{"success":false,"message":"Project not found"}`, string(resp.Data))
}

func TestForward_EmptyBody(t *testing.T) {
	srv, _ := backend(t, http.StatusNoContent, "")
	f := NewForwarder(srv.URL)

	resp, err := f.Forward(context.Background(), "/tasks/{id}", Request{
		Method: http.MethodDelete,
		Params: map[string]string{"id": "1"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.Status)
	require.Nil(t, resp.Data)
}

func TestForward_NonJSON(t *testing.T) {
	srv, _ := backend(t, http.StatusBadGateway, "<html>bad gateway</html>")
	f := NewForwarder(srv.URL)

	_, err := f.Forward(context.Background(), "/tasks", Request{Method: http.MethodGet})
	var pe *Error
	require.ErrorAs(t, err, &pe)
}

func TestForward_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	reg := prometheus.NewRegistry()
	f := NewForwarder(addr, WithMetrics(metrics.New(reg)))

	_, err := f.Forward(context.Background(), "/tasks", Request{Method: http.MethodGet})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "proxy.Forward", pe.Op)

	require.Equal(t, 1, testutil.CollectAndCount(reg, "taskboard_gateway_proxy_requests_total"))
}

func TestForward_MissingParam(t *testing.T) {
	f := NewForwarder("http://unused")
	_, err := f.Forward(context.Background(), "/projects/{id}", Request{Method: http.MethodGet})
	require.ErrorIs(t, err, ErrMissingParam)
}

func TestForward_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL, WithTimeout(30*time.Millisecond))
	_, err := f.Forward(context.Background(), "/slow", Request{Method: http.MethodGet})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
