package cmd

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"github.com/rm-hull/hideaway/internal/nanomdm"
	"github.com/rm-hull/hideaway/internal/profiles"
	"github.com/spf13/cobra"
)

func newGenerateCommand(s *state) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a block profile for every focus mode plus the removal profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := s.services(cmd.Context(), true)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = s.app.Config.Profiles.OutputDir
			}

			paths, err := services.Composer.FocusModes(cmd.Context(), dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range paths {
				printWritten(out, path)
			}

			reports, err := mobileconfig.ValidateDir(dir)
			if err != nil {
				return err
			}
			invalid := 0
			for _, report := range reports {
				services.Composer.ObserveReport(report)
				if !report.IsValid {
					invalid++
					printReport(out, report)
				}
			}
			if invalid > 0 {
				return errors.Newf("%d of %d profiles in %s are invalid", invalid, len(reports), dir)
			}

			fmt.Fprintf(out, "\nInstall on the iPhone by AirDropping a file or opening it from Files, then approve it in Settings > General > VPN & Device Management.\n")
			fmt.Fprintf(out, "To lift the restrictions, remove the profile or install %s.\n", profiles.RemovalFileName)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to write to (default: --output-dir)")
	return cmd
}

func newEnrollCommand(s *state) *cobra.Command {
	var (
		device string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Write the MDM enrollment profile for a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := s.services(cmd.Context(), true)
			if err != nil {
				return err
			}

			profile, err := services.Composer.Enrollment(device, profiles.EnrollmentOptionsFromConfig(s.app.Config.Enrollment))
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(s.app.Config.Profiles.OutputDir, "enroll_"+mobileconfig.NormalizeName(device))
			}

			path, err := mobileconfig.WriteFile(out, profile)
			if err != nil {
				return err
			}
			printWritten(cmd.OutOrStdout(), path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&device, "device", "iPhone", "device name shown in the certificate subject")
	flags.StringVarP(&out, "out", "o", "", "file to write (default: <output-dir>/enroll_<device>.mobileconfig)")
	return cmd
}

func newBlockCommand(s *state) *cobra.Command {
	var (
		name    string
		preset  string
		devices []string
		offline bool
		webOnly bool
	)

	cmd := &cobra.Command{
		Use:   "block [app...]",
		Short: "Block apps, a focus-mode preset or websites",
		Long: `
Builds a block profile and either queues it on nanomdm for the given devices
or, with --offline or no --device, writes it to the output directory.

Apps may be given by display name or bundle id. With --web-only the
arguments are website domains instead.
`,
		Example: `  hideaway block Instagram TikTok --device 0000-UDID
  hideaway block --preset "Study Mode" --offline
  hideaway block --web-only reddit.com news.ycombinator.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && preset == "" {
				return errors.New("specify apps, websites or --preset")
			}

			services, err := s.services(cmd.Context(), offline)
			if err != nil {
				return err
			}
			composer := services.Composer

			var profile *mobileconfig.Profile
			if webOnly {
				profile, err = composer.WebBlock(name, args)
			} else {
				profile, err = composer.Compose(name, preset, args)
			}
			if err != nil {
				return err
			}

			receipt, err := services.Delivery.Install(cmd.Context(), profile, devices...)
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), receipt)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&name, "name", "n", "", "profile name (default: the preset name or \"Focus Mode\")")
	flags.StringVarP(&preset, "preset", "p", "", "focus-mode preset to block")
	flags.StringArrayVar(&devices, "device", nil, "device UDID to deliver to (repeatable)")
	flags.BoolVar(&offline, "offline", false, "write the profile to disk instead of queueing it")
	flags.BoolVar(&webOnly, "web-only", false, "treat the arguments as website domains")
	return cmd
}

func newUnblockCommand(s *state) *cobra.Command {
	var (
		name    string
		preset  string
		devices []string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "unblock",
		Short: "Remove a block profile from devices, or write the removal profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := s.services(cmd.Context(), offline)
			if err != nil {
				return err
			}

			if name == "" {
				name = preset
			}
			identifier := services.Composer.Identifier(name)

			receipt, err := services.Delivery.Remove(cmd.Context(), identifier, devices...)
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), receipt)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&name, "name", "n", "", "name of the block profile to remove (default: \"Focus Mode\")")
	flags.StringVarP(&preset, "preset", "p", "", "remove the block profile of this preset")
	flags.StringArrayVar(&devices, "device", nil, "device UDID to remove the profile from (repeatable)")
	flags.BoolVar(&offline, "offline", false, "write the removal profile to disk instead")
	return cmd
}

func printWritten(w io.Writer, path string) {
	size := ""
	if info, err := os.Stat(path); err == nil {
		size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
	}
	fmt.Fprintf(w, "%s %s%s\n", color.GreenString("wrote"), path, size)
}

func printReceipt(w io.Writer, receipt *profiles.Receipt) {
	if receipt.Offline() {
		printWritten(w, receipt.Path)
		return
	}

	what := receipt.RequestType
	if receipt.Identifier != "" {
		what += " " + receipt.Identifier
	}
	fmt.Fprintf(w, "%s %s for %s (command %s)\n",
		color.GreenString("queued"),
		what,
		pluralize(len(receipt.Devices), "device"),
		receipt.CommandUUID)

	printStatus(w, receipt.Result)
}

// printStatus lists the per-device push and command errors of a reply and
// returns how many devices reported one.
func printStatus(w io.Writer, result *nanomdm.APIResult) int {
	if result == nil {
		return 0
	}
	failed := 0
	for _, id := range slices.Sorted(maps.Keys(result.Status)) {
		status := result.Status[id]
		if status.PushError != "" {
			color.New(color.FgYellow).Fprintf(w, "  %s: push failed: %s\n", id, status.PushError)
		}
		if status.CommandError != "" {
			color.New(color.FgRed).Fprintf(w, "  %s: command failed: %s\n", id, status.CommandError)
		}
		if status.PushError != "" || status.CommandError != "" {
			failed++
		}
	}
	return failed
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
