package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("payload"))
		case "/missing":
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tool := NewFetchTool()

	res, err := tool.Execute(context.Background(), map[string]any{"url": server.URL + "/ok"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError || !strings.Contains(res.Content, "payload") || !strings.Contains(res.Content, "HTTP 200") {
		t.Errorf("unexpected result %+v", res)
	}

	res, err = tool.Execute(context.Background(), map[string]any{"url": server.URL + "/missing"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "HTTP 404") {
		t.Errorf("expected 404 error result, got %+v", res)
	}
}

func TestFetchTool_RejectsNonHTTP(t *testing.T) {
	tool := NewFetchTool()
	for _, bad := range []string{"ftp://host/file", "file:///etc/passwd", "not a url"} {
		res, err := tool.Execute(context.Background(), map[string]any{"url": bad})
		if err != nil {
			t.Fatalf("Execute(%q): %v", bad, err)
		}
		if !res.IsError {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
