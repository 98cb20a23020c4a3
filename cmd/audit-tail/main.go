// Command audit-tail follows the live audit stream of an inventory service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory-audit/internal/domain"
	"inventory-audit/internal/realtime/subscriber"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stderr)

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	url      string
	token    string
	entities []string
	users    []string
	asJSON   bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:           "audit-tail",
		Short:         "Follow audit events as they are recorded",
		Long:          "Connects to the audit websocket and prints events until interrupted. Without --entity or --user every event is printed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.token == "" {
				opts.token = os.Getenv("AUDIT_TOKEN")
			}
			if opts.token == "" {
				return fmt.Errorf("a token is required (--token or AUDIT_TOKEN)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, out, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8080/ws/audit-logs", "audit websocket endpoint")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token (defaults to $AUDIT_TOKEN)")
	cmd.Flags().StringSliceVar(&opts.entities, "entity", nil, "only events for these entity ids")
	cmd.Flags().StringSliceVar(&opts.users, "user", nil, "only events by these user ids")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print each event as a JSON line")

	return cmd
}

func run(ctx context.Context, out io.Writer, opts options) error {
	endpoint, err := url.Parse(opts.url)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.token)

	client := subscriber.New(endpoint.String(),
		subscriber.WithHeader(header),
		subscriber.OnState(func(s subscriber.State) {
			log.WithField("state", s).Info("Audit stream")
		}),
		subscriber.OnEvent(func(e domain.AuditEvent) {
			if err := printEvent(out, e, opts.asJSON); err != nil {
				log.WithError(err).Warn("Failed to print audit event")
			}
		}),
	)

	for _, id := range opts.entities {
		client.JoinEntity(id)
	}
	for _, id := range opts.users {
		client.JoinUser(id)
	}

	return client.Run(ctx)
}

func printEvent(out io.Writer, e domain.AuditEvent, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(out).Encode(e)
	}
	_, err := fmt.Fprintf(out, "%s  %-8s  %-6s  %s  [%s]\n",
		e.CreatedAt.Local().Format(time.DateTime), e.Severity, e.Action, e.Description, e.CorrelationID)
	return err
}
