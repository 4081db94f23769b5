// cmd.go - Haupt-CLI Definition fuer imp
// Hauptfunktionen: NewCLI, appendEnvDocs, versionHandler, newTable
package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/imp/envconfig"
	"github.com/7blacky7/imp/version"
)

// appendEnvDocs haengt die Beschreibung der Umgebungsvariablen an die Usage an
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "imp",
		Short:         "Image pyramids and variational stereo",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	stereoCmd := newStereoCmd()
	pyramidCmd := newPyramidCmd()
	devicesCmd := newDevicesCmd()
	serveCmd := newServeCmd()

	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{stereoCmd, pyramidCmd, devicesCmd, serveCmd} {
		switch cmd {
		case stereoCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["IMP_DEBUG"],
				envVars["IMP_SOLVER"],
				envVars["IMP_PYRAMID_REUSE"],
				envVars["IMP_RELEASE_SOLVERS"],
				envVars["IMP_MAX_IMAGE_PIXELS"],
			})
		case pyramidCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["IMP_PYRAMID_REUSE"], envVars["IMP_MAX_IMAGE_PIXELS"]})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["IMP_DEBUG"],
				envVars["IMP_HOST"],
				envVars["IMP_ORIGINS"],
				envVars["IMP_SOLVER"],
				envVars["IMP_MAX_SOLVES"],
				envVars["IMP_MAX_UPLOAD_BYTES"],
				envVars["IMP_MAX_IMAGE_PIXELS"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["IMP_DEVICE"]})
		}
	}

	rootCmd.AddCommand(
		stereoCmd,
		pyramidCmd,
		devicesCmd,
		serveCmd,
	)

	return rootCmd
}

// versionHandler gibt die Version aus
func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "imp version is %s\n", version.Version)
}

// newTable erstellt eine Tabelle im Listen-Stil ohne Rahmen
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoFormatHeaders(false)
	return table
}
