package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"scamwatch/internal/analytics"
	"scamwatch/internal/apperr"
	"scamwatch/internal/confirm"
	"scamwatch/internal/export"
	"scamwatch/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

const (
	subSingle   = "single"
	subDatabase = "database"
	subView     = "view"
	subRoles    = "roles"
)

func (b *Bot) handleClearReport(ctx context.Context, req *request) error {
	switch req.options.sub {
	case subSingle:
		return b.clearSingle(ctx, req)
	case subDatabase:
		return b.clearDatabase(ctx, req)
	default:
		return apperr.Validation("", "Unknown subcommand.")
	}
}

func confirmButtons(pending *confirm.Pending, confirmLabel string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: confirmLabel, Style: discordgo.DangerButton, CustomID: pending.CustomID(confirm.Yes)},
			discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: pending.CustomID(confirm.No)},
		}},
	}
}

func (b *Bot) clearSingle(ctx context.Context, req *request) error {
	colors := b.cfg.Notifications.EmbedColors
	reportID := strings.TrimSpace(req.options.String("report_id"))
	report, err := b.reports.Get(ctx, reportID)
	if err != nil {
		return err
	}

	pending := b.confirm.Open(req.actor.ID, b.cfg.Confirm.SingleTimeout)
	b.reply(req.interaction, b.commandEmbed("Confirm Report Deletion",
		"**This action cannot be undone!**\nThis will permanently delete the report and all associated files.",
		colors.Warning,
		[]*discordgo.MessageEmbedField{
			{Name: "Report ID", Value: "`" + report.ID + "`", Inline: true},
			{Name: "Offender", Value: report.OffenderName, Inline: true},
			{Name: "Reporter", Value: mention(report.ReporterID), Inline: true},
			{Name: "Status", Value: string(report.Status), Inline: true},
			{Name: "Created", Value: report.CreatedAt.UTC().Format(displayTimeLayout), Inline: true},
		},
	), confirmButtons(pending, "Confirm Delete")...)

	outcome, err := b.reports.DeleteConfirmed(ctx, req.reporter(), report, pending)
	if err != nil {
		return err
	}
	switch outcome {
	case confirm.Confirmed:
		b.reply(req.interaction, b.commandEmbed("Report Deleted",
			fmt.Sprintf("Report `%s` has been permanently deleted.", report.ID), colors.Success, nil))
	case confirm.Cancelled:
		b.reply(req.interaction, b.commandEmbed("Deletion Cancelled", "Report deletion has been cancelled.", colors.Action, nil))
	default:
		b.reply(req.interaction, b.commandEmbed("Confirmation Timeout", "Confirmation timed out. Report was not deleted.", colors.Warning, nil))
	}
	return nil
}

func (b *Bot) clearDatabase(ctx context.Context, req *request) error {
	colors := b.cfg.Notifications.EmbedColors
	pending := b.confirm.Open(req.actor.ID, b.cfg.Confirm.BulkTimeout)
	b.reply(req.interaction, b.commandEmbed("DANGER: Database Clear Confirmation",
		"**THIS WILL DELETE ALL REPORTS AND ASSOCIATED FILES!**\n\n"+
			"This action will:\n"+
			"• Delete all scam reports\n"+
			"• Delete all screenshot files\n"+
			"• Clear all timeout history\n"+
			"• **CANNOT BE UNDONE!**\n\n"+
			"The admin action log is kept.",
		colors.Error, nil,
	), confirmButtons(pending, "I UNDERSTAND - DELETE ALL")...)

	outcome, cleared, err := b.reports.ClearConfirmed(ctx, req.reporter(), pending)
	if err != nil {
		return err
	}
	switch outcome {
	case confirm.Confirmed:
		b.reply(req.interaction, b.commandEmbed("Database Cleared",
			"**All reports and files have been permanently deleted.**\n\nThe database has been reset to a clean state.",
			colors.Error,
			[]*discordgo.MessageEmbedField{
				{Name: "Reports Deleted", Value: fmt.Sprintf("%d", cleared.Reports), Inline: true},
				{Name: "Timeouts Deleted", Value: fmt.Sprintf("%d", cleared.Timeouts), Inline: true},
				{Name: "Action Performed By", Value: fmt.Sprintf("%s (%s)", req.actor.Username, req.actor.ID)},
				{Name: "Timestamp", Value: time.Now().UTC().Format(time.RFC3339)},
			},
		))
	case confirm.Cancelled:
		b.reply(req.interaction, b.commandEmbed("Database Clear Cancelled",
			"Database clear operation has been cancelled. All data remains intact.", colors.Action, nil))
	default:
		b.reply(req.interaction, b.commandEmbed("Confirmation Timeout",
			"Confirmation timed out. Database was not cleared.", colors.Warning, nil))
	}
	return nil
}

func (b *Bot) handleExport(ctx context.Context, req *request) error {
	table, ok := export.ParseTable(req.options.String("table"))
	if !ok {
		return apperr.Validation("table", "Unknown table.")
	}

	now := time.Now().UTC()
	files, err := b.exporter.Export(ctx, table, now)
	if errors.Is(err, export.ErrNoData) {
		return apperr.Validation("", "No data found to export.")
	}
	if err != nil {
		return apperr.Dependency(err, "export database")
	}
	cleanup := b.exporter.ScheduleCleanup(files, b.cfg.Export.CleanupDelay)

	attachments := make([]*discordgo.File, 0, len(files))
	lines := make([]string, 0, len(files))
	for _, file := range files {
		f, err := os.Open(file.Path)
		if err != nil {
			closeAll(attachments)
			cleanup.Stop()
			b.exporter.Remove(files)
			return apperr.Dependency(err, "open export file")
		}
		attachments = append(attachments, &discordgo.File{Name: file.Name, ContentType: "text/csv", Reader: f})
		lines = append(lines, fmt.Sprintf("• %s (%d records)", file.Name, file.Records))
	}
	defer closeAll(attachments)

	embed := b.commandEmbed("Database Export Complete",
		fmt.Sprintf("Successfully exported %d file(s)", len(files)),
		b.cfg.Notifications.EmbedColors.Success,
		[]*discordgo.MessageEmbedField{
			{Name: "Exported by", Value: req.actor.Username, Inline: true},
			{Name: "Export time", Value: now.Format(displayTimeLayout), Inline: true},
			{Name: "Files", Value: truncate(strings.Join(lines, "\n"), 1024)},
		},
	)
	b.editReply(req.interaction, &discordgo.WebhookEdit{
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &[]discordgo.MessageComponent{},
		Files:      attachments,
	})

	b.audit.Record(ctx, storage.AdminAction{
		AdminID:       req.actor.ID,
		AdminUsername: req.actor.Username,
		ActionType:    storage.ActionExportDatabase,
		Details: fmt.Sprintf("Exported %s table(s) - %d file(s), %d total records",
			table, len(files), export.TotalRecords(files)),
	})
	return nil
}

func closeAll(files []*discordgo.File) {
	for _, file := range files {
		if closer, ok := file.Reader.(*os.File); ok {
			_ = closer.Close()
		}
	}
}

func (b *Bot) handleSettings(ctx context.Context, req *request) error {
	switch req.options.sub {
	case subView:
		b.reply(req.interaction, b.settingsEmbed())
	case subRoles:
		b.reply(req.interaction, b.rolesEmbed(b.roleMemberCounts()))
	case subDatabase:
		stats, err := b.analytics.Database(ctx)
		if err != nil {
			return apperr.Dependency(err, "database statistics")
		}
		b.reply(req.interaction, b.databaseEmbed(stats))
	default:
		return apperr.Validation("", "Unknown subcommand.")
	}
	return nil
}

func enabled(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func (b *Bot) settingsEmbed() *discordgo.MessageEmbed {
	cfg := b.cfg
	security := fmt.Sprintf("**Max File Size:** %dMB\n**Allowed Types:** %s\n**VPN Detection:** %s\n**VirusTotal:** %s",
		cfg.Uploads.MaxFileSize/1024/1024,
		strings.Join(cfg.Uploads.AllowedFileTypes, ", "),
		enabled(cfg.VPN.Enabled, "Enabled", "Disabled"),
		enabled(cfg.Scanner.APIKey != "", "Configured", "Not configured"),
	)
	if cfg.Scanner.FailOpen {
		security += "\n**Scanner Fail-Open:** Enabled"
	}
	if b.limiter.Enabled() {
		security += fmt.Sprintf("\n**Report Limit:** %d per %s", cfg.Uploads.SubmissionLimit, cfg.Uploads.SubmissionWindow)
	}

	var database string
	if cfg.Database.Driver == storage.DriverSQLite {
		database = fmt.Sprintf("**Driver:** sqlite\n**Path:** %s", cfg.Database.Path)
	} else {
		database = fmt.Sprintf("**Host:** %s:%d\n**Database:** %s\n**User:** %s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Name, cfg.Database.User)
	}

	logChannel := "Not configured"
	if cfg.LogChannelID != "" {
		logChannel = "<#" + cfg.LogChannelID + ">"
	}
	return b.commandEmbed("Bot Settings", "", cfg.Notifications.EmbedColors.Action, []*discordgo.MessageEmbedField{
		{Name: "Security", Value: security},
		{Name: "Storage", Value: fmt.Sprintf("**Evidence:** %s", cfg.Storage.Driver)},
		{Name: "Database", Value: database},
		{Name: "Logging", Value: fmt.Sprintf("**Log Channel:** %s\n**Log Level:** %s", logChannel, cfg.LogLevel)},
	})
}

// roleMemberCounts counts cached members per configured role. Counts are
// absent when the member cache is empty.
func (b *Bot) roleMemberCounts() map[string]int {
	counts := make(map[string]int)
	if b.session == nil || b.session.State == nil {
		return counts
	}
	guild, err := b.session.State.Guild(b.cfg.GuildID)
	if err != nil || guild == nil {
		return counts
	}
	for _, member := range guild.Members {
		for _, role := range member.Roles {
			counts[role]++
		}
	}
	return counts
}

func (b *Bot) rolesEmbed(counts map[string]int) *discordgo.MessageEmbed {
	describe := func(roleID string) string {
		if roleID == "" {
			return "Not configured"
		}
		if n, ok := counts[roleID]; ok {
			return fmt.Sprintf("<@&%s> (%d members)", roleID, n)
		}
		return "<@&" + roleID + ">"
	}
	roles := b.cfg.Roles
	verified := describe(roles.VerifiedRoleID)
	if roles.VerifiedRoleID == "" && roles.AllowUnverified {
		verified = "Not configured (everyone may report)"
	}
	embed := b.commandEmbed("Role Configuration", "", b.cfg.Notifications.EmbedColors.Action, []*discordgo.MessageEmbedField{
		{Name: "Verified Role", Value: verified, Inline: true},
		{Name: "Guardian Role", Value: describe(roles.GuardianRoleID), Inline: true},
		{Name: "Admin Role", Value: describe(roles.AdminRoleID), Inline: true},
	})
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Role permissions and member counts"}
	return embed
}

func (b *Bot) databaseEmbed(stats analytics.Database) *discordgo.MessageEmbed {
	reportsValue := fmt.Sprintf("**Total:** %d\n**Pending:** %d\n**Reviewed:** %d\n**Resolved:** %d\n**Dismissed:** %d\n**VPN Reports:** %d",
		stats.TotalReports,
		stats.ByStatus[storage.StatusPending],
		stats.ByStatus[storage.StatusReviewed],
		stats.ByStatus[storage.StatusResolved],
		stats.ByStatus[storage.StatusDismissed],
		stats.VPNReports,
	)
	actionsValue := fmt.Sprintf("**Total Actions:** %d\n**Timeouts:** %d\n**Kicks:** %d\n**Bans:** %d\n**Timeout Records:** %d",
		stats.TotalActions, stats.Timeouts, stats.Kicks, stats.Bans, stats.TimeoutRows)
	return b.commandEmbed("Database Statistics", "", b.cfg.Notifications.EmbedColors.Action, []*discordgo.MessageEmbedField{
		{Name: "Reports", Value: reportsValue, Inline: true},
		{Name: "Moderation Actions", Value: actionsValue, Inline: true},
	})
}
