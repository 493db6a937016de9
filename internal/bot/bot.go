package bot

import (
	"context"
	"fmt"
	"time"

	"scamwatch/internal/analytics"
	"scamwatch/internal/background"
	"scamwatch/internal/config"
	"scamwatch/internal/confirm"
	"scamwatch/internal/export"
	"scamwatch/internal/moderation"
	"scamwatch/internal/modules/audit"
	"scamwatch/internal/modules/reportlimit"
	"scamwatch/internal/observability"
	"scamwatch/internal/permissions"
	"scamwatch/internal/reports"
	"scamwatch/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// interactionDeadline bounds one command. Interaction tokens stay valid for
// 15 minutes.
const interactionDeadline = 14 * time.Minute

// Deps are the services the bot dispatches to. Moderation is built by New
// because it needs the platform session.
type Deps struct {
	Store     *storage.Store
	Reports   *reports.Service
	Exporter  *export.Exporter
	Analytics *analytics.Service
	Confirm   *confirm.Registry
	Audit     *audit.Logger
	Runner    *background.Runner
	Metrics   *observability.Metrics
}

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	session    *discordgo.Session
	reports    *reports.Service
	moderation *moderation.Service
	exporter   *export.Exporter
	analytics  *analytics.Service
	confirm    *confirm.Registry
	audit      *audit.Logger
	runner     *background.Runner
	metrics    *observability.Metrics
	limiter    *reportlimit.Module
	commands   map[CommandName]command
	roles      permissions.RoleConfig
}

func New(cfg config.Config, logger *zap.Logger, deps Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		session:   session,
		reports:   deps.Reports,
		exporter:  deps.Exporter,
		analytics: deps.Analytics,
		confirm:   deps.Confirm,
		audit:     deps.Audit,
		runner:    deps.Runner,
		metrics:   deps.Metrics,
		limiter:   reportlimit.New(cfg.Uploads),
		roles: permissions.RoleConfig{
			VerifiedRoleID:  cfg.Roles.VerifiedRoleID,
			GuardianRoleID:  cfg.Roles.GuardianRoleID,
			AdminRoleID:     cfg.Roles.AdminRoleID,
			AllowUnverified: cfg.Roles.AllowUnverified,
		},
	}
	if b.confirm == nil {
		b.confirm = confirm.NewRegistry()
	}
	b.moderation = moderation.NewService(
		newGateway(session, cfg.GuildID),
		deps.Store,
		deps.Audit,
		deps.Runner,
		deps.Metrics,
		moderation.Options{
			AdminRoleID: cfg.Roles.AdminRoleID,
			DMEnabled:   cfg.Notifications.DMEnabled,
			DMTimeout:   cfg.Notifications.SideEffectTimeout,
		},
		logger,
	)
	b.commands = b.commandRegistry()

	if b.audit != nil {
		b.audit.SetNotifier(b.postAuditAction)
	}
	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	return b.registerCommands()
}

// Close disconnects from the gateway. Pending confirmations are left to
// expire; their commands answer with the timeout embed if the process is
// still alive.
func (b *Bot) Close(ctx context.Context) {
	if b.confirm != nil {
		if n := b.confirm.Len(); n > 0 {
			b.logger.Info("closing with pending confirmations", zap.Int("pending", n))
		}
	}
	if b.session == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		if err := b.session.Close(); err != nil {
			b.logger.Warn("session close failed", zap.Error(err))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("session close timed out")
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", event.User.Username),
		zap.Int("guilds", len(event.Guilds)),
	)
}

// postAuditAction mirrors an admin action to the log channel.
func (b *Bot) postAuditAction(ctx context.Context, action storage.AdminAction) error {
	if b.cfg.LogChannelID == "" {
		return nil
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Admin", Value: fmt.Sprintf("%s (%s)", action.AdminUsername, action.AdminID), Inline: true},
	}
	if action.TargetID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Target", Value: mention(action.TargetID), Inline: true})
	}
	if action.Details != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Details", Value: truncate(action.Details, 1024)})
	}
	embed := b.commandEmbed(actionTitle(action.ActionType), "", b.colorFor(action.ActionType), fields)
	_, err := b.session.ChannelMessageSendEmbed(b.cfg.LogChannelID, embed, discordgo.WithContext(ctx))
	return err
}

func (b *Bot) postLogEmbed(kind string, embed *discordgo.MessageEmbed) {
	if b.cfg.LogChannelID == "" || b.runner == nil {
		return
	}
	b.runner.Go(kind, func(ctx context.Context) error {
		_, err := b.session.ChannelMessageSendEmbed(b.cfg.LogChannelID, embed, discordgo.WithContext(ctx))
		return err
	})
}

func actionTitle(actionType string) string {
	switch actionType {
	case storage.ActionTimeout:
		return "User Timed Out"
	case storage.ActionKick:
		return "User Kicked"
	case storage.ActionBan:
		return "User Banned"
	case storage.ActionAddAdmin:
		return "Admin Role Added"
	case storage.ActionClearReport:
		return "Report Deleted"
	case storage.ActionClearDatabase:
		return "Database Cleared"
	case storage.ActionExportDatabase:
		return "Database Exported"
	case storage.ActionUpdateReportStatus:
		return "Report Status Updated"
	default:
		return "Admin Action"
	}
}

func (b *Bot) colorFor(actionType string) int {
	colors := b.cfg.Notifications.EmbedColors
	switch actionType {
	case storage.ActionBan, storage.ActionClearDatabase:
		return colors.Error
	case storage.ActionKick, storage.ActionTimeout, storage.ActionClearReport:
		return colors.Warning
	case storage.ActionAddAdmin:
		return colors.Success
	default:
		return colors.Action
	}
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func (b *Bot) errorEmbed(message string) *discordgo.MessageEmbed {
	return b.commandEmbed("Error", message, b.cfg.Notifications.EmbedColors.Error, nil)
}

// deferReply acknowledges an interaction with an ephemeral "thinking" state.
func (b *Bot) deferReply(interaction *discordgo.InteractionCreate) error {
	return b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// reply replaces the deferred response. components may be empty to strip
// buttons from an earlier prompt.
func (b *Bot) reply(interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components ...discordgo.MessageComponent) {
	edit := &discordgo.WebhookEdit{
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &components,
	}
	if components == nil {
		edit.Components = &[]discordgo.MessageComponent{}
	}
	b.editReply(interaction, edit)
}

func (b *Bot) editReply(interaction *discordgo.InteractionCreate, edit *discordgo.WebhookEdit) {
	if _, err := b.session.InteractionResponseEdit(interaction.Interaction, edit); err != nil {
		b.logger.Warn("interaction edit failed", zap.Error(err))
	}
}

func (b *Bot) respondEmbed(interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respond(interaction *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

// actorFor resolves the invoking member's tier and role standing.
func (b *Bot) actorFor(member *discordgo.Member) (moderation.Member, permissions.Tier) {
	actor := moderation.Member{ID: member.User.ID, Username: member.User.Username, Roles: member.Roles}
	roles := b.guildRoles()
	actor.HighestPosition, actor.IsAdmin = standing(member, roles, b.guildOwner())
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		actor.IsAdmin = true
	}
	return actor, permissions.Evaluate(member.Roles, actor.IsAdmin, b.roles)
}

func (b *Bot) guildRoles() []*discordgo.Role {
	if guild, err := b.session.State.Guild(b.cfg.GuildID); err == nil && guild != nil && len(guild.Roles) > 0 {
		return guild.Roles
	}
	roles, err := b.session.GuildRoles(b.cfg.GuildID)
	if err != nil {
		b.logger.Warn("guild roles lookup failed", zap.Error(err))
		return nil
	}
	return roles
}

func (b *Bot) guildOwner() string {
	if guild, err := b.session.State.Guild(b.cfg.GuildID); err == nil && guild != nil {
		return guild.OwnerID
	}
	return ""
}

// standing returns the highest role position of member and whether its
// roles grant the administrator permission. The guild owner outranks
// everyone.
func standing(member *discordgo.Member, roles []*discordgo.Role, ownerID string) (int, bool) {
	if member == nil {
		return 0, false
	}
	if member.User != nil && ownerID != "" && member.User.ID == ownerID {
		return int(^uint(0) >> 1), true
	}
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}
	highest := 0
	perms := int64(0)
	for _, roleID := range member.Roles {
		role := byID[roleID]
		if role == nil {
			continue
		}
		perms |= role.Permissions
		if role.Position > highest {
			highest = role.Position
		}
	}
	return highest, perms&discordgo.PermissionAdministrator != 0
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
