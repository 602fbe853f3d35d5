package notify

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord posts change notices to one channel. Optional transport: main only
// constructs it when both the app token and the channel id are configured.
type Discord struct {
	session     *discordgo.Session
	channelID   string
	sendLatency chan<- float64
}

// NewDiscord opens a bot session. sendLatency may be nil; when set it is fed
// the latency of each message send in microseconds.
func NewDiscord(appToken string, channelID string, sendLatency chan<- float64) (*Discord, error) {
	if appToken == "" || channelID == "" {
		return nil, fmt.Errorf("NewDiscord: app token or channel id is blank")
	}
	session, err := discordgo.New("Bot " + appToken)
	if err != nil {
		return nil, fmt.Errorf("NewDiscord: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("NewDiscord: can't open session: %w", err)
	}
	return &Discord{
		session:     session,
		channelID:   channelID,
		sendLatency: sendLatency,
	}, nil
}

var _ Notifier = (*Discord)(nil)

func (d *Discord) Notify(userID string, ref string, change ChangeType) {
	msg := ""
	switch change {
	case CHANGE_EVENT_CREATED:
		msg = fmt.Sprintf("New calendar event `%s`", ref)
	case CHANGE_EVENT_UPDATED:
		msg = fmt.Sprintf("Calendar event `%s` updated", ref)
	case CHANGE_EVENT_DELETED:
		msg = fmt.Sprintf("Calendar event `%s` cancelled", ref)
	case CHANGE_EVENT_REMINDER:
		msg = fmt.Sprintf("Calendar event `%s` starts soon", ref)
	case CHANGE_CALENDAR_UPDATED:
		msg = fmt.Sprintf("Calendar `%s` changed", ref)
	default:
		return
	}

	go func() {
		startTimer := time.Now()
		if _, err := d.session.ChannelMessageSend(d.channelID, msg); err != nil {
			slog.Warn("(*Discord).Notify: can't send message", "error", err)
			return
		}
		if d.sendLatency != nil {
			d.sendLatency <- float64(time.Since(startTimer).Microseconds())
		}
	}()
}

func (d *Discord) Close() error {
	return d.session.Close()
}
