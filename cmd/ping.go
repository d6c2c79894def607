package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newPingCommand(s *state) *cobra.Command {
	var (
		devices      []string
		listProfiles bool
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check nanomdm is reachable and push to devices to test their connection",
		Long: `
Asks nanomdm for its version, then sends an APNs push to each --device.
With --list-profiles a ProfileList command is also queued, so the devices
report their installed profiles to the MDM server on their next check-in.
`,
		Example: `  hideaway ping
  hideaway ping --device 0000-UDID --list-profiles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listProfiles && len(devices) == 0 {
				return errors.New("--list-profiles needs at least one --device")
			}

			services, err := s.services(cmd.Context(), false)
			if err != nil {
				return err
			}
			if services.Client == nil {
				return errors.New("nanomdm.url is not set")
			}
			out := cmd.OutOrStdout()

			version, err := services.Client.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s nanomdm %s at %s\n", color.GreenString("reachable"), version, s.app.Config.NanoMDM.URL)

			if len(devices) == 0 {
				return nil
			}

			result, err := services.Delivery.Ping(cmd.Context(), devices...)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", color.GreenString("pushed"), pluralize(len(devices), "device"))
			failed := printStatus(out, result)

			if listProfiles {
				receipt, err := services.Delivery.ListProfiles(cmd.Context(), devices...)
				if err != nil {
					return err
				}
				printReceipt(out, receipt)
			}

			if failed > 0 {
				return errors.Newf("push failed for %d of %s", failed, pluralize(len(devices), "device"))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&devices, "device", nil, "device UDID to push to (repeatable)")
	flags.BoolVar(&listProfiles, "list-profiles", false, "also ask the devices to report their installed profiles")
	return cmd
}
