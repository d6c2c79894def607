package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"github.com/spf13/cobra"
)

const testProfileName = "test_profile" + mobileconfig.FileExtension

var errInvalidProfiles = errors.New("invalid profiles found")

func newValidateCommand(s *state) *cobra.Command {
	var (
		all        bool
		createTest bool
	)

	cmd := &cobra.Command{
		Use:   "validate [file...] | --all [dir]",
		Short: "Check .mobileconfig files against the profile schema",
		Long: `
Validates each file independently and reports every issue found. With no
files, or with --all, every .mobileconfig in a directory is checked. Exits
non-zero when any profile is invalid.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var created []string
			if createTest {
				path, err := writeTestProfile(s.app.Config.Profiles.OutputDir)
				if err != nil {
					return err
				}
				printWritten(out, path)
				created = append(created, path)
			}

			var reports []*mobileconfig.ValidationReport
			if (len(args) == 0 && len(created) == 0) || all {
				dir := "."
				if all && len(args) > 0 {
					dir, args = args[0], nil
				}
				found, err := mobileconfig.ValidateDir(dir)
				if err != nil {
					return err
				}
				if len(found) == 0 {
					fmt.Fprintf(out, "no %s files in %s\n", mobileconfig.FileExtension, dir)
				}
				reports = append(reports, found...)
			}

			for _, path := range append(args, created...) {
				report, err := mobileconfig.ValidateFile(path)
				if err != nil {
					report = &mobileconfig.ValidationReport{Path: path, Issues: []mobileconfig.Issue{{
						Kind:         mobileconfig.InvalidShape,
						PayloadIndex: mobileconfig.DocumentScope,
						Message:      err.Error(),
					}}}
				}
				reports = append(reports, report)
			}

			invalid := 0
			for _, report := range reports {
				printReport(out, report)
				if !report.IsValid {
					invalid++
				}
			}

			if len(reports) > 1 {
				fmt.Fprintf(out, "\n%d of %d profiles valid\n", len(reports)-invalid, len(reports))
			}
			if invalid > 0 {
				return errors.Wrapf(errInvalidProfiles, "%d of %d", invalid, len(reports))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&all, "all", "a", false, "validate every profile in the given directory (default: current directory)")
	flags.BoolVar(&createTest, "create-test", false, "write a minimal test profile to the output directory and validate it")
	return cmd
}

func printReport(w io.Writer, report *mobileconfig.ValidationReport) {
	if report.IsValid {
		fmt.Fprintf(w, "%s %s\n", color.GreenString("valid"), report.Path)
	} else {
		fmt.Fprintf(w, "%s %s\n", color.RedString("invalid"), report.Path)
	}

	for _, issue := range report.Issues {
		switch {
		case issue.Kind.Fatal():
			color.New(color.FgRed).Fprintf(w, "  %s\n", issue)
		case issue.Kind == mobileconfig.Summary:
			fmt.Fprintf(w, "  %s\n", issue)
		default:
			color.New(color.FgYellow).Fprintf(w, "  %s\n", issue)
		}
	}
}

// writeTestProfile writes the smallest useful block profile: one
// application-access payload denying Instagram.
func writeTestProfile(dir string) (string, error) {
	payload := mobileconfig.NewBuilder("com.test").BlockApps([]string{"com.burbn.instagram"})
	payload.PayloadIdentifier = "com.test.restriction"
	payload.PayloadDisplayName = "Test Restriction"

	profile, err := mobileconfig.Assemble(mobileconfig.Metadata{
		Identifier:   "com.test.profile",
		DisplayName:  "Test Profile",
		Description:  "Test profile for validation",
		Organization: "Test",
	}, payload)
	if err != nil {
		return "", err
	}
	return mobileconfig.WriteFile(filepath.Join(dir, testProfileName), profile)
}
