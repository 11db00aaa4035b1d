package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/grpchealth"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/dantte-lp/counterd/internal/server"
)

// newHealthServer serves grpc.health.v1 over h2c, reporting server.ServiceName.
func newHealthServer(t *testing.T) string {
	t.Helper()

	checker := grpchealth.NewStaticChecker(server.ServiceName)
	mux := http.NewServeMux()
	mux.Handle(grpchealth.NewHandler(checker))

	srv := httptest.NewServer(h2c.NewHandler(mux, &http2.Server{}))
	t.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://")
}

func TestCheckHealth(t *testing.T) {
	t.Parallel()

	addr := newHealthServer(t)

	tests := []struct {
		name    string
		service string
		want    string
		wantErr bool
	}{
		{name: "server", service: "", want: "SERVING"},
		{name: "counter service", service: server.ServiceName, want: "SERVING"},
		{name: "unknown service", service: "nope.v1.Nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := checkHealth(context.Background(), addr, tt.service)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("checkHealth(%q) = %+v, want error", tt.service, res)
				}
				return
			}
			if err != nil {
				t.Fatalf("checkHealth(%q): %v", tt.service, err)
			}
			if res.Status != tt.want {
				t.Errorf("status = %s, want %s", res.Status, tt.want)
			}
		})
	}
}

func TestFormatHealthTable(t *testing.T) {
	t.Parallel()

	out, err := formatHealth(healthResult{Status: "SERVING"}, formatTable)
	if err != nil {
		t.Fatalf("formatHealth: %v", err)
	}
	if out != "(server): SERVING\n" {
		t.Errorf("formatHealth = %q", out)
	}
}
