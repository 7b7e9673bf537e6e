package api

import (
	"fmt"
	"strings"
	"time"

	"fleetroute/internal/model"
)

func validateRouteIn(in *model.RouteIn) error {
	if in.Depot == nil {
		return fmt.Errorf("depot is required")
	}
	if err := validatePoint("depot", *in.Depot); err != nil {
		return err
	}
	if in.PlanDate != "" {
		if _, err := time.Parse("2006-01-02", in.PlanDate); err != nil {
			return fmt.Errorf("planDate must be YYYY-MM-DD: %s", in.PlanDate)
		}
	}
	seen := map[string]struct{}{}
	for i, st := range in.Stops {
		if st.Location == nil {
			return fmt.Errorf("stops[%d].location is required", i)
		}
		if err := validatePoint(fmt.Sprintf("stops[%d].location", i), *st.Location); err != nil {
			return err
		}
		switch strings.ToUpper(st.Priority) {
		case "", model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
		default:
			return fmt.Errorf("stops[%d].priority invalid: %s (allowed: NORMAL,HIGH,URGENT)", i, st.Priority)
		}
		if st.ID == "" {
			continue
		}
		if _, dup := seen[st.ID]; dup {
			return fmt.Errorf("duplicate stop id: %s", st.ID)
		}
		seen[st.ID] = struct{}{}
	}
	return nil
}

func validatePoint(field string, p model.GeoPoint) error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%s.lat out of range: %g", field, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%s.lng out of range: %g", field, p.Lng)
	}
	return nil
}
