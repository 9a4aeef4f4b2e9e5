package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/planner"
	"github.com/tramline/tramline/pkg/polyline"
)

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var (
		from, to     string
		k            int
		showPolyline bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a trip between two stops or coordinates",
		Example: `  tramline plan --from de:09162:6 --to de:09162:2
  tramline plan --from 48.1402,11.5583 --to de:09162:7 --k 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := opts.loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Planner.Plan(ctx, planner.Request{
				From: parseEndpoint(from),
				To:   parseEndpoint(to),
				K:    k,
			})
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), result, showPolyline)
			return nil
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "", "origin stop id or lat,lon")
	cmd.Flags().StringVarP(&to, "to", "t", "", "destination stop id or lat,lon")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of candidate paths (default from config)")
	cmd.Flags().BoolVar(&showPolyline, "polyline", false, "print the encoded polyline of each leg")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// parseEndpoint reads "lat,lon" as a coordinate and anything else as a stop id.
func parseEndpoint(raw string) planner.Endpoint {
	raw = strings.TrimSpace(raw)
	if latRaw, lonRaw, ok := strings.Cut(raw, ","); ok {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonRaw), 64)
		if errLat == nil && errLon == nil {
			return planner.Endpoint{Lat: &lat, Lon: &lon}
		}
	}
	return planner.Endpoint{StopID: raw}
}

func printPlan(w io.Writer, result *planner.Result, showPolyline bool) {
	s := result.Itinerary.Summary
	fmt.Fprintf(w, "%s -> %s\n", result.From.Stop.Name, result.To.Stop.Name)
	fmt.Fprintf(w, "ride %.1f min, %d transfers, score %.1f (candidate %d of %d, %d disqualified)\n",
		s.RideMinutes, s.Transfers, s.Score, s.CandidateIndex+1, s.CandidatesEvaluated, s.CandidatesDisqualified)

	for i, leg := range result.Itinerary.Legs {
		fmt.Fprintf(w, "%2d. %-7s %-5s %s -> %s (%d stops, %.0f m)\n",
			i+1, leg.Mode, routeLabel(leg), leg.First().Name, leg.Last().Name,
			len(leg.Waypoints)-1, leg.DistanceMeters())
		if showPolyline {
			fmt.Fprintf(w, "    %s\n", legPolyline(leg))
		}
	}
}

func routeLabel(leg itinerary.Leg) string {
	if leg.IsWalk() {
		return ""
	}
	return leg.Route
}

func legPolyline(leg itinerary.Leg) string {
	coords := make([]polyline.Coordinate, len(leg.Waypoints))
	for i, wp := range leg.Waypoints {
		coords[i] = polyline.Coordinate{Lat: wp.Lat, Lon: wp.Lon}
	}
	return polyline.Encode(coords)
}
