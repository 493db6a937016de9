package bot

import (
	"context"
	"fmt"

	"scamwatch/internal/apperr"
	"scamwatch/internal/moderation"

	"github.com/bwmarrin/discordgo"
)

func targetOf(user *discordgo.User) (moderation.Target, error) {
	if user == nil || user.ID == "" {
		return moderation.Target{}, apperr.Validation("user", "A user is required.")
	}
	name := user.Username
	if name == "" {
		name = user.ID
	}
	return moderation.Target{ID: user.ID, Username: name}, nil
}

func userField(target moderation.Target) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{Name: "User", Value: fmt.Sprintf("%s (%s)", target.Username, target.ID), Inline: true}
}

func (b *Bot) handleTimeout(ctx context.Context, req *request) error {
	target, err := targetOf(req.options.User("user"))
	if err != nil {
		return err
	}
	minutes := req.options.Int("duration", 0)
	result, err := b.moderation.Timeout(ctx, req.actor, target, minutes, req.options.String("reason"))
	if err != nil {
		return err
	}
	b.reply(req.interaction, b.commandEmbed("User Timed Out", "", b.cfg.Notifications.EmbedColors.Warning, []*discordgo.MessageEmbedField{
		userField(target),
		{Name: "Moderator", Value: req.actor.Username, Inline: true},
		{Name: "Duration", Value: fmt.Sprintf("%d minutes", minutes), Inline: true},
		{Name: "Until", Value: fmt.Sprintf("<t:%d:F>", result.Until.Unix())},
		{Name: "Reason", Value: result.Reason},
	}))
	return nil
}

func (b *Bot) handleKick(ctx context.Context, req *request) error {
	target, err := targetOf(req.options.User("user"))
	if err != nil {
		return err
	}
	reason, err := b.moderation.Kick(ctx, req.actor, target, req.options.String("reason"))
	if err != nil {
		return err
	}
	b.reply(req.interaction, b.commandEmbed("User Kicked", "", b.cfg.Notifications.EmbedColors.Warning, []*discordgo.MessageEmbedField{
		userField(target),
		{Name: "Moderator", Value: req.actor.Username, Inline: true},
		{Name: "Reason", Value: reason},
	}))
	return nil
}

func (b *Bot) handleBan(ctx context.Context, req *request) error {
	target, err := targetOf(req.options.User("user"))
	if err != nil {
		return err
	}
	deleteDays := req.options.Int("delete_days", 0)
	reason, err := b.moderation.Ban(ctx, req.actor, target, req.options.String("reason"), deleteDays)
	if err != nil {
		return err
	}
	b.reply(req.interaction, b.commandEmbed("User Banned", "", b.cfg.Notifications.EmbedColors.Error, []*discordgo.MessageEmbedField{
		userField(target),
		{Name: "Moderator", Value: req.actor.Username, Inline: true},
		{Name: "Messages Deleted", Value: fmt.Sprintf("%d days", deleteDays), Inline: true},
		{Name: "Reason", Value: reason},
	}))
	return nil
}

func (b *Bot) handleAddAdmin(ctx context.Context, req *request) error {
	target, err := targetOf(req.options.User("user"))
	if err != nil {
		return err
	}
	if err := b.moderation.GrantAdmin(ctx, req.actor, target); err != nil {
		return err
	}
	b.reply(req.interaction, b.commandEmbed("Admin Role Added", "", b.cfg.Notifications.EmbedColors.Success, []*discordgo.MessageEmbedField{
		userField(target),
		{Name: "Added by", Value: req.actor.Username, Inline: true},
		{Name: "Role", Value: "<@&" + b.cfg.Roles.AdminRoleID + ">", Inline: true},
	}))
	return nil
}
