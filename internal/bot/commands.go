package bot

import (
	"context"
	"strconv"

	"scamwatch/internal/export"
	"scamwatch/internal/moderation"
	"scamwatch/internal/permissions"
	"scamwatch/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type CommandName string

const (
	CommandReport      CommandName = "report"
	CommandViewReports CommandName = "viewreports"
	CommandSetStatus   CommandName = "setstatus"
	CommandTimeout     CommandName = "timeout"
	CommandKick        CommandName = "kick"
	CommandBan         CommandName = "ban"
	CommandAddAdmin    CommandName = "addadmin"
	CommandClearReport CommandName = "clearreport"
	CommandExportDB    CommandName = "exportdb"
	CommandSettings    CommandName = "settings"
)

// CommandNames is the closed set of commands the bot registers.
var CommandNames = []CommandName{
	CommandReport,
	CommandViewReports,
	CommandSetStatus,
	CommandTimeout,
	CommandKick,
	CommandBan,
	CommandAddAdmin,
	CommandClearReport,
	CommandExportDB,
	CommandSettings,
}

type command struct {
	name CommandName
	tier permissions.Tier
	// verb completes "I don't have permission to %s this user."
	verb       string
	failure    string
	definition *discordgo.ApplicationCommand
	handle     func(ctx context.Context, req *request) error
}

func (b *Bot) commandRegistry() map[CommandName]command {
	commands := []command{
		{
			name:       CommandReport,
			tier:       permissions.Verified,
			failure:    "There was an error submitting your report. Please try again.",
			definition: reportDefinition(),
			handle:     b.handleReport,
		},
		{
			name:       CommandViewReports,
			tier:       permissions.Guardian,
			failure:    "Failed to fetch reports.",
			definition: viewReportsDefinition(),
			handle:     b.handleViewReports,
		},
		{
			name:       CommandSetStatus,
			tier:       permissions.Guardian,
			failure:    "Failed to update report status.",
			definition: setStatusDefinition(),
			handle:     b.handleSetStatus,
		},
		{
			name:       CommandTimeout,
			tier:       permissions.Guardian,
			verb:       "timeout",
			failure:    "Failed to timeout user.",
			definition: timeoutDefinition(),
			handle:     b.handleTimeout,
		},
		{
			name:       CommandKick,
			tier:       permissions.Admin,
			verb:       "kick",
			failure:    "Failed to kick user.",
			definition: kickDefinition(),
			handle:     b.handleKick,
		},
		{
			name:       CommandBan,
			tier:       permissions.Admin,
			verb:       "ban",
			failure:    "Failed to ban user.",
			definition: banDefinition(),
			handle:     b.handleBan,
		},
		{
			name:       CommandAddAdmin,
			tier:       permissions.Admin,
			verb:       "manage roles for",
			failure:    "Failed to add admin role.",
			definition: addAdminDefinition(),
			handle:     b.handleAddAdmin,
		},
		{
			name:       CommandClearReport,
			tier:       permissions.Admin,
			failure:    "Failed to clear reports.",
			definition: clearReportDefinition(),
			handle:     b.handleClearReport,
		},
		{
			name:       CommandExportDB,
			tier:       permissions.Admin,
			failure:    "Failed to export database.",
			definition: exportDefinition(),
			handle:     b.handleExport,
		},
		{
			name:       CommandSettings,
			tier:       permissions.Admin,
			failure:    "Failed to load settings.",
			definition: settingsDefinition(),
			handle:     b.handleSettings,
		},
	}

	registry := make(map[CommandName]command, len(commands))
	for _, cmd := range commands {
		registry[cmd.name] = cmd
	}
	return registry
}

func denial(tier permissions.Tier) string {
	switch tier {
	case permissions.Verified:
		return "You need to have the verified role to submit reports."
	case permissions.Guardian:
		return "You need Guardian role or higher to use this command."
	default:
		return "You need Admin role or higher to use this command."
	}
}

func minValue(v float64) *float64 {
	return &v
}

func statusChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(storage.Statuses))
	for _, status := range storage.Statuses {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: titleCase(string(status)), Value: string(status)})
	}
	return choices
}

func reportDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandReport),
		Description: "Report a scammer with evidence",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "offender_name", Description: "Display name of the offender", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "offender_id", Description: "Discord ID of the offender (if known)"},
			{Type: discordgo.ApplicationCommandOptionString, Name: "email", Description: "Verified email of the offender (if known)"},
			{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Description of the scam incident"},
			{Type: discordgo.ApplicationCommandOptionAttachment, Name: "screenshot1", Description: "Screenshot evidence (required)", Required: true},
			{Type: discordgo.ApplicationCommandOptionAttachment, Name: "screenshot2", Description: "Additional screenshot evidence"},
			{Type: discordgo.ApplicationCommandOptionAttachment, Name: "screenshot3", Description: "Additional screenshot evidence"},
		},
	}
}

func viewReportsDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandViewReports),
		Description: "View scam reports (Moderator only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "status", Description: "Filter by report status", Choices: statusChoices()},
			{Type: discordgo.ApplicationCommandOptionString, Name: "search", Description: "Search by offender name or report ID"},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "limit",
				Description: "Number of reports to show (default: " + strconv.Itoa(storage.DefaultListLimit) + ", max: " + strconv.Itoa(storage.MaxListLimit) + ")",
				MinValue:    minValue(1),
				MaxValue:    storage.MaxListLimit,
			},
		},
	}
}

func setStatusDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandSetStatus),
		Description: "Change the review status of a report (Moderator only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "report_id", Description: "Report ID", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "status", Description: "New status", Required: true, Choices: statusChoices()},
		},
	}
}

func timeoutDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandTimeout),
		Description: "Timeout a user (Moderator only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to timeout", Required: true},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "duration",
				Description: "Timeout duration in minutes",
				Required:    true,
				MinValue:    minValue(moderation.MinTimeoutMinutes),
				MaxValue:    moderation.MaxTimeoutMinutes,
			},
			{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for timeout"},
		},
	}
}

func kickDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandKick),
		Description: "Kick a user from the server (Admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to kick", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for kick"},
		},
	}
}

func banDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandBan),
		Description: "Ban a user from the server (Admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to ban", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for ban"},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "delete_days",
				Description: "Days of messages to delete (0-7)",
				MinValue:    minValue(0),
				MaxValue:    moderation.MaxBanDeleteDays,
			},
		},
	}
}

func addAdminDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandAddAdmin),
		Description: "Add admin role to a user (Admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to give admin role", Required: true},
		},
	}
}

func clearReportDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandClearReport),
		Description: "Clear a specific report or entire database (Admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "single",
				Description: "Clear a single report by ID",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "report_id", Description: "Report ID to clear", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "database",
				Description: "Clear entire reports database (DANGEROUS)",
			},
		},
	}
}

func exportDefinition() *discordgo.ApplicationCommand {
	choices := []*discordgo.ApplicationCommandOptionChoice{
		{Name: "Reports", Value: string(export.TableReports)},
		{Name: "Admin Actions", Value: string(export.TableAdminActions)},
		{Name: "User Timeouts", Value: string(export.TableTimeouts)},
		{Name: "All Tables", Value: string(export.TableAll)},
	}
	return &discordgo.ApplicationCommand{
		Name:        string(CommandExportDB),
		Description: "Export database to CSV format (Admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "table", Description: "Which table to export", Choices: choices},
		},
	}
}

func settingsDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        string(CommandSettings),
		Description: "View or modify bot settings (Admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "view", Description: "View current bot settings"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "roles", Description: "View role configuration"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "database", Description: "View database statistics"},
		},
	}
}

// registerCommands syncs the guild's commands with the registry: existing
// ones are edited, missing ones created, stale ones deleted.
func (b *Bot) registerCommands() error {
	appID := b.cfg.ClientID
	if appID == "" {
		appID = b.session.State.User.ID
	}
	guildID := b.cfg.GuildID

	existing, err := b.session.ApplicationCommands(appID, guildID)
	if err != nil {
		b.logger.Warn("listing commands failed, creating all", zap.Error(err))
		existing = nil
	}
	existingByName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	for _, name := range CommandNames {
		definition := b.commands[name].definition
		if current, ok := existingByName[definition.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, guildID, current.ID, definition); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, definition); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := b.commands[CommandName(cmd.Name)]; ok {
			continue
		}
		if err := b.session.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
			b.logger.Warn("stale command delete failed", zap.String("command", cmd.Name), zap.Error(err))
		}
	}
	b.logger.Info("commands registered", zap.String("guild_id", guildID), zap.Int("count", len(CommandNames)))
	return nil
}
