package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/realtime"
	"github.com/iliyamo/league-client/internal/session"
)

type printer struct {
	out   io.Writer
	json  bool
	color bool
	r     *lipgloss.Renderer
}

func newPrinter(cmd *cobra.Command, opts *RootOptions) *printer {
	out := cmd.OutOrStdout()
	return &printer{
		out:   out,
		json:  opts.Format == "json",
		color: !opts.NoColor,
		r:     lipgloss.NewRenderer(out),
	}
}

func (p *printer) style(fg string, bold bool) lipgloss.Style {
	return p.r.NewStyle().Foreground(lipgloss.Color(fg)).Bold(bold)
}

func (p *printer) paint(s string, fg string, bold bool) string {
	if !p.color {
		return s
	}
	return p.style(fg, bold).Render(s)
}

func (p *printer) line(s string) error {
	_, err := fmt.Fprintln(p.out, s)
	return err
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type identityView struct {
	Status       string          `json:"status"`
	Identity     *model.Identity `json:"identity,omitempty"`
	Capabilities []string        `json:"capabilities"`
}

func (p *printer) identity(s *session.Session) error {
	st := s.State()
	v := identityView{Status: st.Status.String(), Identity: st.Identity, Capabilities: []string{}}
	if st.Identity != nil {
		v.Capabilities = append(v.Capabilities, s.Policy().Capabilities(st.Identity.Role)...)
	}
	if p.json {
		return p.encode(v)
	}
	if st.Identity == nil {
		return p.line(p.paint("Not signed in.", "241", false))
	}

	caps := "none"
	if len(v.Capabilities) > 0 {
		caps = strings.Join(v.Capabilities, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s <%s>\n", p.paint("Signed in as", "99", true), st.Identity.DisplayName, st.Identity.Email)
	fmt.Fprintf(&b, "  role:         %s\n", p.paint(st.Identity.Role, "205", false))
	fmt.Fprintf(&b, "  capabilities: %s\n", caps)
	fmt.Fprintf(&b, "  session:      %s", st.Status)
	return p.line(b.String())
}

// stateColors follow the usual traffic light.
var stateColors = map[realtime.ConnectionState]string{
	realtime.Disconnected: "9",
	realtime.Connecting:   "11",
	realtime.Connected:    "10",
	realtime.Reconnecting: "214",
}

func (p *printer) state(s realtime.ConnectionState) error {
	if p.json {
		return p.encode(map[string]string{"connection": s.String()})
	}
	return p.line(p.paint("● "+s.String(), stateColors[s], true))
}

type eventView struct {
	model.NotificationEvent
	Unread int `json:"unread"`
}

func (p *printer) event(ev model.NotificationEvent, unread int) error {
	if p.json {
		return p.encode(eventView{NotificationEvent: ev, Unread: unread})
	}
	payload := ""
	if len(ev.Payload) > 0 {
		raw, _ := json.Marshal(ev.Payload)
		payload = " " + string(raw)
	}
	badge := p.paint(fmt.Sprintf("(%d unread)", unread), "205", true)
	return p.line(fmt.Sprintf("%s %s %s%s  %s",
		p.paint(ev.Timestamp.Local().Format("15:04:05"), "241", false),
		p.paint(ev.Topic, "99", false),
		p.paint(string(ev.Type), "252", true),
		payload,
		badge,
	))
}
