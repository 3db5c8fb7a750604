package streams

import (
	"regexp"
	"strings"

	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
	"github.com/rivo/uniseg"
)

var hexColor = regexp.MustCompile(`^#([a-fA-F0-9]{3,6})$`)

// CheckStreamName validates a stream name. The name is expected to be trimmed by the caller.
// The length limit is in user-perceived characters.
func CheckStreamName(name string) error {
	if strings.TrimSpace(name) == "" {
		return t.NewUserError(t.ErrMalformed, "Invalid stream name '%s'", name)
	}
	if uniseg.GraphemeClusterCount(name) > globals.MaxNameLength {
		return t.NewUserError(t.ErrMalformed, "Stream name too long (limit: %d characters).", globals.MaxNameLength)
	}
	if strings.ContainsRune(name, 0) {
		return t.NewUserError(t.ErrMalformed, "Stream name '%s' contains NULL (0x00) characters.", name)
	}
	return nil
}

// CheckStreamNameAvailable validates the name and checks that no stream of the realm uses it.
func CheckStreamNameAvailable(realm t.Uid, name string) error {
	if err := CheckStreamName(name); err != nil {
		return err
	}
	existing, err := store.Streams.GetByName(realm, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return t.NewUserError(t.ErrDuplicate, "Stream name '%s' is already taken.", name)
	}
	return nil
}

// CheckForExactlyOneStreamArg ensures the caller identified the stream either by id or by name.
func CheckForExactlyOneStreamArg(streamId t.Uid, streamName string) error {
	if streamId.IsZero() && streamName == "" {
		return t.NewUserError(t.ErrMalformed, "Please supply 'stream'.")
	}
	if !streamId.IsZero() && streamName != "" {
		return t.NewUserError(t.ErrMalformed, "Please choose one: 'stream' or 'stream_id'.")
	}
	return nil
}

// cleanDescription replaces newlines with spaces and checks the length.
func cleanDescription(desc string) (string, error) {
	desc = strings.ReplaceAll(desc, "\n", " ")
	if uniseg.GraphemeClusterCount(desc) > globals.MaxDescriptionLength {
		return "", t.NewUserError(t.ErrMalformed, "description is too long (limit: %d characters)",
			globals.MaxDescriptionLength)
	}
	return desc, nil
}
