package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func positionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <ip> <x> <y>",
		Short: "Manually place an AP on the canvas",
		Long: "Overrides an AP's canvas coordinates. With the coordinate method set\n" +
			"to manual the engine leaves the AP where you put it; in auto mode the\n" +
			"next sweep may move it again.",
		Args: cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			x, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("malformed x coordinate %q", args[1])
			}
			y, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("malformed y coordinate %q", args[2])
			}

			body := map[string]float64{"x": x, "y": y}
			if err := client.send("POST", "/v1/aps/"+args[0]+"/position", body, nil); err != nil {
				return err
			}
			fmt.Printf("%s placed at (%.0f, %.0f)\n", args[0], x, y)
			return nil
		},
	}
}

func quitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Ask the daemon to shut down",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := client.send("POST", "/v1/quit", nil, nil); err != nil {
				return err
			}
			fmt.Println("daemon quitting")
			return nil
		},
	}
}
