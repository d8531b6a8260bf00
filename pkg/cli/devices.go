package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/qa-runner/pkg/config"
	"github.com/devicelab-dev/qa-runner/pkg/device"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
)

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List devices visible to adb",
	Description: `Print every device adb reports, with its state and model.

Examples:
  qa-runner devices`,
	Action: runDevices,
}

func runDevices(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	initLogging(c, cfg, "")
	defer logger.Close()

	listings, err := device.ListDevices(c.Context, device.Options{
		ADBPath:        cfg.Device.ADBPath,
		CommandTimeout: cfg.Timeouts.Command,
	})
	if err != nil {
		logger.Error("list devices: %v", err)
		return err
	}
	logger.Info("adb reported %d device(s)", len(listings))

	w := c.App.Writer
	if w == nil {
		w = os.Stdout
	}
	if len(listings) == 0 {
		fmt.Fprintln(w, "No devices attached")
		return nil
	}
	fmt.Fprint(w, renderDevices(listings, cfg))
	return nil
}

func renderDevices(listings []device.Listing, cfg *config.Config) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Serial", "State", "Model", "Type", ""})
	for _, l := range listings {
		kind := "device"
		if l.IsEmulator() {
			kind = "emulator"
		}
		selected := ""
		if cfg.Device.Serial != "" && l.Serial == cfg.Device.Serial {
			selected = "selected"
		}
		t.AppendRow(table.Row{l.Serial, l.State, l.Model, kind, selected})
	}
	return t.Render() + "\n"
}
