package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newNearestCmd(opts *rootOptions) *cobra.Command {
	var lat, lon float64

	cmd := &cobra.Command{
		Use:   "nearest",
		Short: "Find the stop closest to a coordinate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stop, dist, err := a.Catalog.Nearest(lat, lon)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.0f m\n", stop.ID, stop.Name, dist)
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func newStopsCmd(opts *rootOptions) *cobra.Command {
	var (
		lat, lon, radius float64
		limit            int
	)

	cmd := &cobra.Command{
		Use:   "stops",
		Short: "List catalog stops, optionally around a coordinate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
				found, err := a.Catalog.Within(lat, lon, radius, limit)
				if err != nil {
					return err
				}
				for _, sd := range found {
					fmt.Fprintf(tw, "%s\t%s\t%.0f m\n", sd.Stop.ID, sd.Stop.Name, sd.DistanceMeters)
				}
				return nil
			}

			snap, err := a.Catalog.Snapshot()
			if err != nil {
				return err
			}
			for i, s := range snap.Stops() {
				if limit > 0 && i >= limit {
					break
				}
				fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\n", s.ID, s.Name, s.Lat, s.Lon)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude of the search center")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude of the search center")
	cmd.Flags().Float64Var(&radius, "radius", 500, "search radius in meters")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of stops (0 lists all)")
	return cmd
}

func newWarmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Precompute candidates for the busiest stop pairs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.WarmJob.Run(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "warmed %d/%d targets (%d candidates) in %s\n",
				result.Successful, result.Total, result.Candidates, result.Duration.Round(time.Millisecond))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  %s: %s\n", e.Target, e.Error)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d targets failed", result.Failed)
			}
			return nil
		},
	}
}
