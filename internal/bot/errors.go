package bot

import (
	"fmt"

	"scamwatch/internal/apperr"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

const genericFailure = "There was an error while executing this command!"

func restCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code
	}
	return 0
}

func restStatus(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

// describeError turns a handler error into the text shown to the user.
// expected is false for failures that need a log line and an error report.
func describeError(cmd command, err error) (message string, expected bool) {
	if msg, ok := apperr.UserMessage(err); ok {
		return msg, true
	}
	switch restCode(err) {
	case discordgo.ErrCodeMissingPermissions:
		if cmd.verb != "" {
			return fmt.Sprintf("I don't have permission to %s this user.", cmd.verb), true
		}
		return "I don't have the required permissions to do that.", true
	case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
		return "Unknown user - they may have already left the server.", true
	case discordgo.ErrCodeUnknownBan:
		return "That user is not banned.", true
	}
	if cmd.failure != "" {
		return cmd.failure, false
	}
	return genericFailure, false
}

func outcomeOf(err error, expected bool) string {
	switch {
	case err == nil:
		return "ok"
	case expected:
		return "rejected"
	default:
		return "error"
	}
}
