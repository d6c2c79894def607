package nanomdm

import (
	"github.com/cockroachdb/errors"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"howett.net/plist"
)

const (
	InstallProfile = "InstallProfile"
	RemoveProfile  = "RemoveProfile"
	ProfileList    = "ProfileList"
)

// Command is the MDM command envelope queued for a device.
type Command struct {
	CommandUUID string      `plist:"CommandUUID"`
	Command     CommandBody `plist:"Command"`
}

type CommandBody struct {
	RequestType string `plist:"RequestType"`
	// Payload carries the encoded profile of an InstallProfile command.
	Payload []byte `plist:"Payload,omitempty"`
	// Identifier names the profile removed by a RemoveProfile command.
	Identifier string `plist:"Identifier,omitempty"`
}

func NewInstallProfileCommand(profile *mobileconfig.Profile) (*Command, error) {
	data, err := mobileconfig.EncodeXML(profile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode profile for InstallProfile")
	}
	return &Command{
		CommandUUID: mobileconfig.NewUUID(),
		Command:     CommandBody{RequestType: InstallProfile, Payload: data},
	}, nil
}

func NewRemoveProfileCommand(identifier string) (*Command, error) {
	if identifier == "" {
		return nil, errors.New("RemoveProfile requires a profile identifier")
	}
	return &Command{
		CommandUUID: mobileconfig.NewUUID(),
		Command:     CommandBody{RequestType: RemoveProfile, Identifier: identifier},
	}, nil
}

func NewProfileListCommand() *Command {
	return &Command{
		CommandUUID: mobileconfig.NewUUID(),
		Command:     CommandBody{RequestType: ProfileList},
	}
}

func (c *Command) Encode() ([]byte, error) {
	data, err := plist.MarshalIndent(c, plist.XMLFormat, "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s command", c.Command.RequestType)
	}
	return data, nil
}

func DecodeCommand(data []byte) (*Command, error) {
	var cmd Command
	if _, err := plist.Unmarshal(data, &cmd); err != nil {
		return nil, errors.Wrap(err, "failed to decode command")
	}
	return &cmd, nil
}
