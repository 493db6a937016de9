package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scamwatch/internal/apperr"
	"scamwatch/internal/modules/reportlimit"
	"scamwatch/internal/permissions"
	"scamwatch/internal/reports"
	"scamwatch/internal/storage"
	"scamwatch/internal/vpn"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	displayTimeLayout = "2006-01-02 15:04:05 UTC"
	maxListedLinks    = 5
	maxViewButtons    = 5
)

var screenshotOptions = []string{"screenshot1", "screenshot2", "screenshot3"}

func (b *Bot) handleReport(ctx context.Context, req *request) error {
	// guardians and admins are exempt from the submission limit
	var slot reportlimit.Reservation
	if !req.tier.AtLeast(permissions.Guardian) {
		reserved, ok, wait := b.limiter.Reserve(req.actor.ID, time.Now())
		if !ok {
			return apperr.Validationf("", "You have submitted too many reports recently. Please try again in %s.", formatWait(wait))
		}
		slot = reserved
	}

	sub := reports.Submission{
		Reporter:      req.reporter(),
		OffenderName:  req.options.String("offender_name"),
		OffenderID:    req.options.String("offender_id"),
		OffenderEmail: req.options.String("email"),
		Description:   req.options.String("description"),
		// the platform never exposes the submitter's address
		Origin: vpn.OriginUnavailable,
	}
	for _, name := range screenshotOptions {
		if attachment := req.options.Attachment(name); attachment != nil {
			sub.Attachments = append(sub.Attachments, reports.Attachment{
				Name: attachment.Filename,
				Size: int64(attachment.Size),
				URL:  attachment.URL,
			})
		}
	}

	progress := "Processing and scanning your evidence..."
	b.editReply(req.interaction, &discordgo.WebhookEdit{Content: &progress})

	result, err := b.reports.Submit(ctx, sub)
	if err != nil {
		slot.Release()
		return err
	}

	embed := b.submittedEmbed(result, len(sub.Attachments))
	if found := b.lookupUser(result.Report.OffenderID); found != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Found User", Value: fmt.Sprintf("%s (%s)", found.Username, found.ID)})
	}
	content := "✅ **Report submitted successfully!**"
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "View Report", Style: discordgo.PrimaryButton, CustomID: reportViewPrefix + result.Report.ID},
		}},
	}
	b.editReply(req.interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &components,
	})

	b.postLogEmbed("log_channel", b.commandEmbed("New Scam Report", "", b.cfg.Notifications.EmbedColors.Warning, []*discordgo.MessageEmbedField{
		{Name: "Report ID", Value: "`" + result.Report.ID + "`", Inline: true},
		{Name: "Reporter", Value: mention(result.Report.ReporterID), Inline: true},
		{Name: "Offender", Value: result.Report.OffenderName, Inline: true},
	}))
	return nil
}

// formatWait rounds up to whole minutes, or seconds below one minute.
func formatWait(wait time.Duration) string {
	if wait < time.Minute {
		seconds := int((wait + time.Second - 1) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		return fmt.Sprintf("%d second(s)", seconds)
	}
	return fmt.Sprintf("%d minute(s)", int((wait+time.Minute-1)/time.Minute))
}

func (b *Bot) submittedEmbed(result reports.Result, screenshots int) *discordgo.MessageEmbed {
	report := result.Report
	fields := []*discordgo.MessageEmbedField{
		{Name: "Report ID", Value: "`" + report.ID + "`", Inline: true},
		{Name: "Offender", Value: report.OffenderName, Inline: true},
		{Name: "Reporter", Value: mention(report.ReporterID), Inline: true},
		{Name: "Submitted", Value: report.CreatedAt.UTC().Format(displayTimeLayout), Inline: true},
		{Name: "Screenshots", Value: fmt.Sprintf("%d file(s) processed", screenshots), Inline: true},
		{Name: "Status", Value: "Under Review", Inline: true},
	}
	if report.Description != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Description", Value: truncate(report.Description, 1024)})
	}
	if len(report.Links) > 0 {
		links := report.Links
		if len(links) > maxListedLinks {
			links = links[:maxListedLinks]
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Links Found", Value: truncate(strings.Join(links, "\n"), 1024)})
	}
	if len(result.Findings) > 0 {
		lines := make([]string, 0, len(result.Findings))
		for _, finding := range result.Findings {
			lines = append(lines, fmt.Sprintf("%s (%s)", finding.Domain, finding.Rule))
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Suspicious Links", Value: truncate(strings.Join(lines, "\n"), 1024)})
	}
	if result.VPN.IsVPN {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "VPN Detected", Value: fmt.Sprintf("Confidence: %d%%", result.VPN.Confidence)})
	}
	if result.ScanSkipped {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Malware Scan", Value: "Skipped (scanner unavailable)"})
	}
	return b.commandEmbed("Scam Report Submitted", "", b.cfg.Notifications.EmbedColors.Error, fields)
}

func (b *Bot) lookupUser(userID string) *discordgo.User {
	if userID == "" || b.session == nil {
		return nil
	}
	user, err := b.session.User(userID)
	if err != nil {
		b.logger.Debug("offender lookup failed", zap.String("offender_id", userID), zap.Error(err))
		return nil
	}
	return user
}

func (b *Bot) handleViewReports(ctx context.Context, req *request) error {
	filter := storage.ReportFilter{
		Status: storage.Status(req.options.String("status")),
		Search: req.options.String("search"),
		Limit:  req.options.Int("limit", storage.DefaultListLimit),
	}
	list, err := b.reports.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		b.reply(req.interaction, b.commandEmbed("Scam Reports", "No reports found matching your criteria.", b.cfg.Notifications.EmbedColors.Action, nil))
		return nil
	}
	embed, components := b.reportListEmbed(list)
	b.reply(req.interaction, embed, components...)
	return nil
}

func (b *Bot) reportListEmbed(list []storage.Report) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	fields := make([]*discordgo.MessageEmbedField, 0, len(list))
	buttons := make([]discordgo.MessageComponent, 0, maxViewButtons)
	for _, report := range list {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Report " + shortID(report.ID),
			Value: fmt.Sprintf("**Offender:** %s\n**Reporter:** %s\n**Status:** %s\n**Date:** %s",
				report.OffenderName,
				mention(report.ReporterID),
				report.Status,
				report.CreatedAt.UTC().Format(displayTimeLayout),
			),
		})
		if len(buttons) < maxViewButtons {
			buttons = append(buttons, discordgo.Button{
				Label:    "View " + shortID(report.ID),
				Style:    discordgo.SecondaryButton,
				CustomID: reportViewPrefix + report.ID,
			})
		}
	}
	embed := b.commandEmbed("Scam Reports", fmt.Sprintf("Showing %d report(s)", len(list)), b.cfg.Notifications.EmbedColors.Action, fields)
	return embed, []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func (b *Bot) handleSetStatus(ctx context.Context, req *request) error {
	id := strings.TrimSpace(req.options.String("report_id"))
	status := storage.Status(req.options.String("status"))
	if err := b.reports.SetStatus(ctx, req.reporter(), id, status); err != nil {
		return err
	}
	b.reply(req.interaction, b.commandEmbed("Report Status Updated", "", b.cfg.Notifications.EmbedColors.Success, []*discordgo.MessageEmbedField{
		{Name: "Report ID", Value: "`" + id + "`", Inline: true},
		{Name: "Status", Value: string(status), Inline: true},
		{Name: "Updated by", Value: mention(req.actor.ID), Inline: true},
	}))
	return nil
}

// handleReportView shows one report to guardians and to its reporter.
func (b *Bot) handleReportView(interaction *discordgo.InteractionCreate, reportID string) {
	if interaction.Member == nil || interaction.Member.User == nil {
		b.respond(interaction, "This action can only be used in the server.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), interactionDeadline)
	defer cancel()

	report, err := b.reports.Get(ctx, reportID)
	if err != nil {
		if msg, ok := apperr.UserMessage(err); ok {
			b.respond(interaction, msg)
			return
		}
		b.logger.Error("report view failed", zap.String("report_id", reportID), zap.Error(err))
		b.respond(interaction, genericFailure)
		return
	}

	_, tier := b.actorFor(interaction.Member)
	if !canViewReport(tier, interaction.Member.User.ID, report) {
		b.respond(interaction, denial(permissions.Guardian))
		return
	}
	b.respondEmbed(interaction, b.reportDetailEmbed(report))
}

func canViewReport(tier permissions.Tier, userID string, report storage.Report) bool {
	return tier.AtLeast(permissions.Guardian) || report.ReporterID == userID
}

func (b *Bot) reportDetailEmbed(report storage.Report) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Report ID", Value: "`" + report.ID + "`", Inline: true},
		{Name: "Status", Value: string(report.Status), Inline: true},
		{Name: "Created", Value: report.CreatedAt.UTC().Format(displayTimeLayout), Inline: true},
		{Name: "Offender", Value: report.OffenderName, Inline: true},
		{Name: "Reporter", Value: mention(report.ReporterID), Inline: true},
		{Name: "Screenshots", Value: fmt.Sprintf("%d file(s)", len(report.ScreenshotPaths)), Inline: true},
	}
	if report.OffenderID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Offender ID", Value: report.OffenderID, Inline: true})
	}
	if report.OffenderEmail != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Offender Email", Value: report.OffenderEmail, Inline: true})
	}
	if report.Description != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Description", Value: truncate(report.Description, 1024)})
	}
	if len(report.Links) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Links", Value: truncate(strings.Join(report.Links, "\n"), 1024)})
	}
	if report.IsVPN {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "VPN", Value: "Detected"})
	}
	return b.commandEmbed("Scam Report", "", b.cfg.Notifications.EmbedColors.Action, fields)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
