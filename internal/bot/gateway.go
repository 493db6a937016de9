package bot

import (
	"context"
	"net/http"
	"time"

	"scamwatch/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

// gateway performs moderation calls against one guild.
type gateway struct {
	session *discordgo.Session
	guildID string
}

func newGateway(session *discordgo.Session, guildID string) *gateway {
	return &gateway{session: session, guildID: guildID}
}

func (g *gateway) Member(ctx context.Context, userID string) (moderation.Member, error) {
	member, err := g.session.State.Member(g.guildID, userID)
	if err != nil || member == nil {
		member, err = g.session.GuildMember(g.guildID, userID, discordgo.WithContext(ctx))
	}
	if err != nil {
		if restCode(err) == discordgo.ErrCodeUnknownMember || restStatus(err) == http.StatusNotFound {
			return moderation.Member{}, moderation.ErrMemberNotFound
		}
		return moderation.Member{}, err
	}

	out := moderation.Member{ID: userID, Roles: member.Roles}
	if member.User != nil {
		out.Username = member.User.Username
	}
	roles, err := g.roles(ctx)
	if err != nil {
		return moderation.Member{}, err
	}
	out.HighestPosition, out.IsAdmin = standing(member, roles, g.owner())
	return out, nil
}

func (g *gateway) IsBanned(ctx context.Context, userID string) (bool, error) {
	_, err := g.session.GuildBan(g.guildID, userID, discordgo.WithContext(ctx))
	if err == nil {
		return true, nil
	}
	if restCode(err) == discordgo.ErrCodeUnknownBan || restStatus(err) == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func (g *gateway) Timeout(ctx context.Context, userID string, until time.Time, reason string) error {
	return g.session.GuildMemberTimeout(g.guildID, userID, &until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

func (g *gateway) Kick(ctx context.Context, userID, reason string) error {
	return g.session.GuildMemberDeleteWithReason(g.guildID, userID, reason, discordgo.WithContext(ctx))
}

func (g *gateway) Ban(ctx context.Context, userID, reason string, deleteDays int) error {
	return g.session.GuildBanCreateWithReason(g.guildID, userID, reason, deleteDays, discordgo.WithContext(ctx))
}

func (g *gateway) AddRole(ctx context.Context, userID, roleID string) error {
	return g.session.GuildMemberRoleAdd(g.guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (g *gateway) DirectMessage(ctx context.Context, userID string, notice moderation.Notice) error {
	channel, err := g.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "open dm channel")
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(notice.Fields))
	for _, field := range notice.Fields {
		fields = append(fields, &discordgo.MessageEmbedField{Name: field.Name, Value: field.Value, Inline: field.Inline})
	}
	embed := &discordgo.MessageEmbed{
		Title:       notice.Title,
		Description: notice.Description,
		Color:       0xF59E0B,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
	_, err = g.session.ChannelMessageSendEmbed(channel.ID, embed, discordgo.WithContext(ctx))
	return errors.Wrap(err, "send dm")
}

func (g *gateway) GuildName() string {
	if guild, err := g.session.State.Guild(g.guildID); err == nil && guild != nil && guild.Name != "" {
		return guild.Name
	}
	return "the server"
}

func (g *gateway) roles(ctx context.Context) ([]*discordgo.Role, error) {
	if guild, err := g.session.State.Guild(g.guildID); err == nil && guild != nil && len(guild.Roles) > 0 {
		return guild.Roles, nil
	}
	roles, err := g.session.GuildRoles(g.guildID, discordgo.WithContext(ctx))
	return roles, errors.Wrap(err, "guild roles")
}

func (g *gateway) owner() string {
	if guild, err := g.session.State.Guild(g.guildID); err == nil && guild != nil {
		return guild.OwnerID
	}
	return ""
}
