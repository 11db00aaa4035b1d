package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dantte-lp/counterd/internal/server"
)

// errNotServing is returned when the daemon reports a status other than SERVING.
var errNotServing = errors.New("service not serving")

// healthResult is the outcome of a grpc.health.v1 check.
type healthResult struct {
	Service string `json:"service" yaml:"service"`
	Status  string `json:"status"  yaml:"status"`
}

func healthCmd() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check daemon health over grpc.health.v1",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			res, err := checkHealth(ctx, serverAddr, service)
			if err != nil {
				return err
			}

			out, err := formatHealth(res, outputFormat)
			if err != nil {
				return fmt.Errorf("format health: %w", err)
			}

			fmt.Print(out)

			if res.Status != healthpb.HealthCheckResponse_SERVING.String() {
				return fmt.Errorf("%w: %s", errNotServing, res.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", server.ServiceName,
		"service name to check; empty checks the whole server")

	return cmd
}

// checkHealth queries the grpc.health.v1 Check procedure on addr over
// plaintext HTTP/2.
func checkHealth(ctx context.Context, addr, service string) (healthResult, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthResult{}, fmt.Errorf("create grpc client for %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthResult{}, fmt.Errorf("health check %q: %w", service, err)
	}

	return healthResult{Service: service, Status: resp.GetStatus().String()}, nil
}
