package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/league-client/internal/guard"
	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/permission"
)

// NewAdminCommand groups the commands that need the admin capability.
func NewAdminCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Tournament administration",
	}
	cmd.AddCommand(NewPublishCommand(opts))
	return cmd
}

// PublishOptions holds publish flags.
type PublishOptions struct {
	Topic   string
	Type    string
	Payload string
}

// NewPublishCommand creates `admin publish`.
func NewPublishCommand(opts *RootOptions) *cobra.Command {
	popts := &PublishOptions{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event to a topic",
		Example: `  leaguectl admin publish --topic tournament-42 --type score.updated \
    --payload '{"match":"m1","home":2,"away":1}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if popts.Topic == "" || popts.Type == "" {
				return errors.New("--topic and --type are required")
			}
			var payload map[string]any
			if popts.Payload != "" {
				if err := json.Unmarshal([]byte(popts.Payload), &payload); err != nil {
					return fmt.Errorf("--payload must be a JSON object: %w", err)
				}
			}

			cred := opts.rt.App.Session.State().Credential
			ev, err := opts.rt.Admin.Publish(cmd.Context(), cred, popts.Topic, model.EventType(popts.Type), payload)
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}

			p := newPrinter(cmd, opts)
			if p.json {
				return p.encode(ev)
			}
			return p.line(fmt.Sprintf("Published %s to %s (id %s)", ev.Type, ev.Topic, ev.ID))
		},
	}

	cmd.Flags().StringVarP(&popts.Topic, "topic", "t", "", "destination topic")
	cmd.Flags().StringVar(&popts.Type, "type", "", "event type, e.g. score.updated")
	cmd.Flags().StringVar(&popts.Payload, "payload", "", "event payload as a JSON object")

	return opts.route(cmd, guard.Route{
		Path:    "/admin/publish",
		Require: guard.Requirement{Permission: permission.CapAdmin},
	})
}
