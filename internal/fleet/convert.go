package fleet

import (
	"log"
	"time"

	"fleetroute/internal/model"
	"fleetroute/internal/opt"
)

func toRequest(r model.Route) opt.Request {
	req := opt.Request{
		RouteID: r.ID,
		Depot:   opt.Coordinate{Lat: r.Depot.Lat, Lng: r.Depot.Lng},
		Stops:   make([]opt.Stop, 0, len(r.Stops)),
	}
	for _, s := range r.Stops {
		st := opt.Stop{
			ID:       s.ID,
			Location: opt.Coordinate{Lat: s.Location.Lat, Lng: s.Location.Lng},
			Priority: opt.Priority(s.Priority),
		}
		if tw := parseWindow(s.TimeWindow); tw != nil {
			st.TimeWindow = tw
		}
		req.Stops = append(req.Stops, st)
	}
	return req
}

// parseWindow returns nil unless both bounds are valid RFC3339 instants.
func parseWindow(tw *model.TimeWindow) *opt.TimeWindow {
	if tw == nil {
		return nil
	}
	start, err1 := time.Parse(time.RFC3339, tw.Start)
	end, err2 := time.Parse(time.RFC3339, tw.End)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &opt.TimeWindow{Start: start, End: end}
}

func toResponse(runID string, res opt.Result) model.OptimizeResponse {
	out := model.OptimizeResponse{
		RunID:               runID,
		RouteID:             res.RouteID,
		Algorithm:           string(res.Algorithm),
		OriginalOrder:       res.OriginalTour.IDs(),
		OptimizedStops:      make([]model.OptimizedStop, len(res.OptimizedTour)),
		OriginalDistanceKm:  res.OriginalDistanceKm,
		OptimizedDistanceKm: res.OptimizedDistanceKm,
		DistanceSavedKm:     res.DistanceSavedKm,
		TimeSavedMinutes:    res.TimeSavedMinutes,
		FuelSavedLiters:     res.FuelSavedLiters,
		ImprovementPercent:  res.ImprovementPercent,
		Applied:             res.Applied,
		Message:             res.Message,
		State:               string(res.State),
		DurationMs:          res.Duration.Milliseconds(),
	}
	for i, s := range res.OptimizedTour {
		out.OptimizedStops[i] = model.OptimizedStop{
			ID:       s.ID,
			Seq:      i + 1,
			Location: model.GeoPoint{Lat: s.Location.Lat, Lng: s.Location.Lng},
			Priority: string(s.Priority),
		}
	}
	return out
}

// timed logs the duration and outcome of op when the returned func runs.
func timed(op, tenantID, subject string) func(errp *error) {
	start := time.Now()
	return func(errp *error) {
		dur := time.Since(start)
		if errp != nil && *errp != nil {
			log.Printf("tenant=%s op=%s subject=%s dur=%dms err=%v", tenantID, op, subject, dur.Milliseconds(), *errp)
			return
		}
		log.Printf("tenant=%s op=%s subject=%s dur=%dms", tenantID, op, subject, dur.Milliseconds())
	}
}
