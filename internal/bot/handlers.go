package bot

import (
	"context"
	"strings"

	"scamwatch/internal/confirm"
	"scamwatch/internal/moderation"
	"scamwatch/internal/observability"
	"scamwatch/internal/permissions"
	"scamwatch/internal/reports"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const reportViewPrefix = "report:view:"

// request is one command invocation after the permission check.
type request struct {
	interaction *discordgo.InteractionCreate
	options     options
	actor       moderation.Member
	tier        permissions.Tier
}

func (r *request) reporter() reports.Actor {
	return reports.Actor{ID: r.actor.ID, Username: r.actor.Username}
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(interaction)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(interaction)
	}
}

func (b *Bot) handleCommand(interaction *discordgo.InteractionCreate) {
	data := interaction.ApplicationCommandData()
	cmd, ok := b.commands[CommandName(data.Name)]
	if !ok {
		b.logger.Warn("unknown command", zap.String("command", data.Name))
		b.respond(interaction, "Unknown command.")
		return
	}
	if interaction.Member == nil || interaction.Member.User == nil || interaction.GuildID != b.cfg.GuildID {
		b.respond(interaction, "This command can only be used in the server.")
		return
	}
	if err := b.deferReply(interaction); err != nil {
		b.logger.Warn("interaction defer failed", zap.String("command", data.Name), zap.Error(err))
		return
	}

	finish := b.metrics.StartCommand(data.Name)
	actor, tier := b.actorFor(interaction.Member)
	if !tier.AtLeast(cmd.tier) {
		finish("denied")
		b.reply(interaction, b.errorEmbed(denial(cmd.tier)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionDeadline)
	defer cancel()

	req := &request{
		interaction: interaction,
		options:     parseOptions(data),
		actor:       actor,
		tier:        tier,
	}
	err := cmd.handle(ctx, req)
	if err == nil {
		finish("ok")
		return
	}

	message, expected := describeError(cmd, err)
	finish(outcomeOf(err, expected))
	if !expected {
		b.logger.Error("command failed",
			zap.String("command", data.Name),
			zap.String("user_id", actor.ID),
			zap.Error(err),
		)
		observability.CaptureError("command_"+data.Name, err)
	}
	b.reply(interaction, b.errorEmbed(message))
}

func (b *Bot) handleComponent(interaction *discordgo.InteractionCreate) {
	customID := interaction.MessageComponentData().CustomID
	userID := interactionUserID(interaction)

	switch {
	case confirm.IsCustomID(customID):
		token, choice, ok := confirm.ParseCustomID(customID)
		if !ok {
			b.respond(interaction, "This confirmation is not valid.")
			return
		}
		_, err := b.confirm.Resolve(token, userID, choice)
		switch {
		case errors.Is(err, confirm.ErrNotRequester):
			b.respond(interaction, "Only the user who started this action can answer it.")
		case errors.Is(err, confirm.ErrUnknownToken):
			b.respond(interaction, "This confirmation has expired or was already answered.")
		case err != nil:
			b.logger.Error("confirmation resolve failed", zap.Error(err))
			b.respond(interaction, genericFailure)
		default:
			// the waiting command edits the prompt itself
			err := b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredMessageUpdate,
			})
			if err != nil {
				b.logger.Warn("component ack failed", zap.Error(err))
			}
		}
	case strings.HasPrefix(customID, reportViewPrefix):
		b.handleReportView(interaction, strings.TrimPrefix(customID, reportViewPrefix))
	default:
		b.logger.Debug("unhandled component", zap.String("custom_id", customID))
	}
}

func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

// options flattens a command's options, descending into one subcommand.
type options struct {
	sub      string
	values   map[string]*discordgo.ApplicationCommandInteractionDataOption
	resolved *discordgo.ApplicationCommandInteractionDataResolved
}

func parseOptions(data discordgo.ApplicationCommandInteractionData) options {
	opts := options{
		values:   make(map[string]*discordgo.ApplicationCommandInteractionDataOption),
		resolved: data.Resolved,
	}
	list := data.Options
	if len(list) == 1 && list[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts.sub = list[0].Name
		list = list[0].Options
	}
	for _, opt := range list {
		opts.values[opt.Name] = opt
	}
	return opts
}

func (o options) String(name string) string {
	opt, ok := o.values[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return opt.StringValue()
}

func (o options) Int(name string, fallback int) int {
	opt, ok := o.values[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionInteger {
		return fallback
	}
	return int(opt.IntValue())
}

// User returns the resolved user for a user option, or nil when absent.
func (o options) User(name string) *discordgo.User {
	opt, ok := o.values[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionUser {
		return nil
	}
	id, _ := opt.Value.(string)
	if o.resolved != nil {
		if user, ok := o.resolved.Users[id]; ok && user != nil {
			return user
		}
	}
	return &discordgo.User{ID: id}
}

func (o options) Attachment(name string) *discordgo.MessageAttachment {
	opt, ok := o.values[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionAttachment || o.resolved == nil {
		return nil
	}
	id, _ := opt.Value.(string)
	return o.resolved.Attachments[id]
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
