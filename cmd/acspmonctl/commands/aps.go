package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cachalot1984/acspmon/internal/model"
)

func apsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aps [ip]",
		Short: "List the monitored fleet, or show one AP in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showAP(args[0])
			}
			return listAPs()
		},
	}
	return cmd
}

func listAPs() error {
	var aps []model.APSnapshot
	if err := client.get("/v1/aps", &aps); err != nil {
		return err
	}

	if outputFormat != "table" {
		return printStructured(aps)
	}

	tw := newTable()
	fmt.Fprintln(tw, "IP\tNAME\tMAC\tHIVE\tACTIVE\tRADIOS\tCENTER")
	for _, ap := range aps {
		center := "-"
		if len(ap.Radios) > 0 {
			center = fmt.Sprintf("(%.0f, %.0f)", ap.Radios[0].Center.X, ap.Radios[0].Center.Y)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%d\t%s\n",
			ap.IP, ap.Name, ap.MAC, ap.Hive, ap.Active, len(ap.Radios), center)
	}
	return tw.Flush()
}

func showAP(ip string) error {
	var ap model.APSnapshot
	if err := client.get("/v1/aps/"+ip, &ap); err != nil {
		return err
	}

	if outputFormat != "table" {
		return printStructured(ap)
	}

	fmt.Printf("%s  %s  %s  hive=%s  active=%v\n", ap.IP, ap.Name, ap.MAC, ap.Hive, ap.Active)

	tw := newTable()
	fmt.Fprintln(tw, "RADIO\tMAC\tMODE\tPHY\tBAND\tSTATE\tCHNL\tPWR\tNFLOOR\tSCORE\tCOVERAGE\tNBRS")
	for _, r := range ap.Radios {
		score := "-"
		if r.Scored && r.NbrScore != model.ScoreNoNeighbors {
			score = fmt.Sprintf("%.2f", r.NbrScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%d\t%d\t%s\t%d\t%d\n",
			r.Name, r.MAC, r.Mode, r.Phymode, r.Band,
			r.ChannelState, r.Channel, r.TxPower, r.NoiseFloor,
			score, r.Coverage, len(r.Neighbors))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, r := range ap.Radios {
		if len(r.Neighbors) == 0 {
			continue
		}
		fmt.Printf("\n%s neighbors (near to far):\n", r.Name)
		tw = newTable()
		fmt.Fprintln(tw, "  AP\tIF\tMAC\tRSSI\tSTA\tCRC\tCU")
		for _, n := range r.Neighbors {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				n.AP, n.Ifname, n.MAC, n.RSSIMean, n.StaCount, n.CRCErr, n.TotalCU)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func renderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Dump the draw-ordered render circles",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp struct {
				Frozen  bool                 `json:"frozen"`
				Circles []model.RenderCircle `json:"circles"`
			}
			if err := client.get("/v1/render", &resp); err != nil {
				return err
			}

			if outputFormat != "table" {
				return printStructured(resp)
			}

			if resp.Frozen {
				fmt.Println("(canvas frozen)")
			}
			tw := newTable()
			fmt.Fprintln(tw, "AP\tRADIO\tCENTER\tRADIUS\tFILL\tOUTLINE\tDASHED\tLABEL")
			for _, c := range resp.Circles {
				fmt.Fprintf(tw, "%s\t%s\t(%.0f, %.0f)\t%d\t%s\t%s\t%v\t%s\n",
					c.AP, c.Radio, c.Center.X, c.Center.Y, c.Radius,
					c.Fill, c.Outline, c.Dashed, c.Name)
			}
			return tw.Flush()
		},
	}
}
