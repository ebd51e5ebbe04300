package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"
	"github.com/disgoorg/snowflake/v2"

	"github.com/studcom-mm/washbot/washbot"
	"github.com/studcom-mm/washbot/washbot/conversation"
)

// componentPrefix routes every conversation button through one component
// handler; the rest of the custom ID is the machine's callback token.
const componentPrefix = "/wash/"

const maxActionRows = 5

// BuildMessage renders one machine reply as a Discord message.
func BuildMessage(r conversation.Reply) discord.MessageCreate {
	msg := discord.MessageCreate{
		Content:    r.Text,
		Components: buildComponents(r),
	}
	for _, path := range r.Documents {
		f, err := os.Open(path)
		if err != nil {
			slog.Error("Failed to attach document",
				slog.String("type", "cmd"),
				slog.String("path", path),
				slog.Any("error", err))
			continue
		}
		msg.Files = append(msg.Files, discord.NewFile(filepath.Base(path), "", f))
	}
	return msg
}

func buildComponents(r conversation.Reply) []discord.ContainerComponent {
	rows := r.Buttons
	if r.MainMenu {
		rows = append(rows, conversation.MainMenuButtons()...)
	}
	if len(rows) == 0 {
		return nil
	}

	// Discord caps a message at five action rows; pack overflowing layouts
	// greedily, five buttons to a row.
	if len(rows) > maxActionRows {
		var flat []conversation.Button
		for _, row := range rows {
			flat = append(flat, row...)
		}
		rows = nil
		for len(flat) > 0 {
			n := 5
			if len(flat) < n {
				n = len(flat)
			}
			rows = append(rows, flat[:n])
			flat = flat[n:]
		}
	}

	var components []discord.ContainerComponent
	for _, row := range rows {
		var buttons []discord.InteractiveComponent
		for _, b := range row {
			buttons = append(buttons, discord.NewSecondaryButton(b.Label, componentPrefix+b.Token))
		}
		components = append(components, discord.NewActionRow(buttons...))
	}
	return components
}

// RespondCommand delivers machine replies as the response to a slash command:
// the first reply answers the interaction, the rest follow up.
func RespondCommand(b *washbot.Bot, e *handler.CommandEvent, replies []conversation.Reply) error {
	for i, r := range replies {
		if len(r.Pages) > 0 {
			if err := b.Paginator.Create(e.Respond, historyPages(e.ID().String(), e.User().ID, r.Pages), false); err != nil {
				return err
			}
			continue
		}
		msg := BuildMessage(r)
		if i == 0 {
			if err := e.CreateMessage(msg); err != nil {
				return err
			}
			continue
		}
		if _, err := e.CreateFollowupMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// RespondComponent delivers machine replies to a button press. A reply marked
// Edit replaces the message the button lived on.
func RespondComponent(b *washbot.Bot, e *handler.ComponentEvent, replies []conversation.Reply) error {
	responded := false
	for _, r := range replies {
		if len(r.Pages) > 0 {
			if err := b.Paginator.Create(e.Respond, historyPages(e.ID().String(), e.User().ID, r.Pages), false); err != nil {
				return err
			}
			responded = true
			continue
		}
		switch {
		case r.Edit && !responded:
			components := buildComponents(r)
			if err := e.UpdateMessage(discord.MessageUpdate{
				Content:    &r.Text,
				Components: &components,
			}); err != nil {
				return err
			}
		case !responded:
			if err := e.CreateMessage(BuildMessage(r)); err != nil {
				return err
			}
		default:
			if _, err := e.CreateFollowupMessage(BuildMessage(r)); err != nil {
				return err
			}
		}
		responded = true
	}
	return nil
}

func historyPages(id string, creator snowflake.ID, pages []string) paginator.Pages {
	return paginator.Pages{
		ID:      id,
		Creator: creator,
		PageFunc: func(page int, embed *discord.EmbedBuilder) {
			embed.SetDescription(pages[page]).
				SetColor(0x2B2D31).
				SetFooter(fmt.Sprintf("Стр. %d/%d", page+1, len(pages)), "")
		},
		Pages:      len(pages),
		ExpireMode: paginator.ExpireModeAfterLastUsage,
	}
}
