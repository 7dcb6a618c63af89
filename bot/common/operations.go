package common

import (
	"context"
	"strconv"

	"minebot/domain/entities"

	"github.com/bwmarrin/discordgo"
)

// OperationLookup is the read side of the operation service used to resolve
// which operation a command refers to
type OperationLookup interface {
	Get(ctx context.Context, operationID int64) (*entities.Operation, error)
	ActiveForGuild(ctx context.Context, guildID int64) (*entities.Operation, error)
	Recent(ctx context.Context, guildID int64, limit int) ([]*entities.Operation, error)
}

// ResolveOperation picks the operation a command targets: the explicit id if
// given, else the guild's active operation, else its most recent one.
// Operations of other guilds are reported as not found.
func ResolveOperation(ctx context.Context, ops OperationLookup, guildID int64, operationID *int64) (*entities.Operation, error) {
	if operationID != nil {
		op, err := ops.Get(ctx, *operationID)
		if err != nil {
			return nil, err
		}
		if op.GuildID != guildID {
			return nil, &entities.OperationNotFoundError{OperationID: *operationID}
		}
		return op, nil
	}

	op, err := ops.ActiveForGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if op != nil {
		return op, nil
	}

	recent, err := ops.Recent(ctx, guildID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, NewUserError("No operations have been run in this server yet.", "no operation to resolve")
	}
	return recent[0], nil
}

// OptionMap indexes command options by name
func OptionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

// OptionalInt returns the integer option called name, or nil when absent
func OptionalInt(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) *int64 {
	opt, ok := options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionInteger {
		return nil
	}
	v := opt.IntValue()
	return &v
}

// OptionalString returns the string option called name, or "" when absent
func OptionalString(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	opt, ok := options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return opt.StringValue()
}

// GuildAndUser parses the guild and invoking user ids of an interaction
func GuildAndUser(i *discordgo.InteractionCreate) (int64, int64, error) {
	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		return 0, 0, NewUserError("This command can only be used in a server.", "interaction without guild id")
	}
	userID, err := strconv.ParseInt(InteractionUserID(i), 10, 64)
	if err != nil {
		return 0, 0, NewSystemError(err, "failed to parse interaction user id")
	}
	return guildID, userID, nil
}
