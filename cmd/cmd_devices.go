// cmd_devices.go - Geraete-Command
// Hauptfunktionen: newDevicesCmd, DevicesHandler
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/envconfig"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Aliases: []string{"device"},
		Short:   "List available compute devices",
		Args:    cobra.NoArgs,
		RunE:    DevicesHandler,
	}
}

// DevicesHandler - Listet alle erkannten Geraete
func DevicesHandler(cmd *cobra.Command, _ []string) error {
	var data [][]string
	for _, d := range device.GetDevices() {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		data = append(data, []string{
			string(d.Backend),
			fmt.Sprint(d.DeviceID),
			d.DeviceName,
			d.Vendor,
			fmt.Sprint(d.Threads),
			strings.Join(d.Features, ","),
			def,
		})
	}

	out := cmd.OutOrStdout()
	table := newTable(out, []string{"BACKEND", "ID", "NAME", "VENDOR", "THREADS", "FEATURES", "DEFAULT"})
	table.AppendBulk(data)
	table.Render()

	selected, err := device.Selected()
	if err != nil {
		return fmt.Errorf("IMP_DEVICE=%s: %w", envconfig.Device(), err)
	}
	fmt.Fprintf(out, "\nselected backend: %s\n", selected)
	return nil
}
