package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/replay_capture/internal/browser"
	"github.com/dgnsrekt/replay_capture/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stdout)
			cfg := deps.Config
			ok := true

			if path, err := deps.App.Transcoder.Available(); err != nil {
				f.SetupCheck("ffmpeg", false, "not found. Install ffmpeg or set FFMPEG_PATH")
				ok = false
			} else {
				f.SetupCheck("ffmpeg", true, path)
			}

			switch {
			case cfg.CDPURL != "":
				f.SetupCheck("Browser", true, "remote CDP at "+cfg.CDPURL)
			case cfg.ExecutablePath != "":
				if _, err := os.Stat(cfg.ExecutablePath); err != nil {
					f.SetupCheck("Browser", false, cfg.ExecutablePath+" does not exist")
					ok = false
				} else {
					f.SetupCheck("Browser", true, cfg.ExecutablePath)
				}
			default:
				if path, err := browser.DetectBrowser(); err != nil {
					f.SetupCheck("Browser", false, err.Error())
					ok = false
				} else {
					f.SetupCheck("Browser", true, path)
				}
			}

			f.SetupCheck("Output directory", true, deps.App.Ledger.Dir())

			if _, err := os.Stat(cfg.TargetsFile); err != nil {
				f.SetupCheck("Targets file", false, cfg.TargetsFile+" not found (only needed for batch)")
			} else {
				f.SetupCheck("Targets file", true, cfg.TargetsFile)
			}

			if err := cfg.Validate(); err != nil {
				f.SetupCheck("Configuration", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Configuration", true, "valid")
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}
