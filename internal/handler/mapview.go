package handler

import (
	"context"

	"github.com/wardstone/server/internal/gateway"
	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/world"
)

// Map view radius bounds in meters. Zero defaults; the cap keeps one
// request from scanning the whole world.
const (
	defaultViewRadius = 2000.0
	maxViewRadius     = 10000.0
)

type mapViewRequest struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius,omitempty"`
}

type mapViewReply struct {
	Center gateway.LatLng     `json:"center"`
	Radius float64            `json:"radius"`
	Flags  []gateway.FlagData `json:"flags"`
	Areas  []gateway.AreaData `json:"areas"`
}

// HandleMapView answers a client viewport query: every flag within the
// radius, nearest first, plus every area whose box intersects the view.
func HandleMapView(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	var r mapViewRequest
	if !decode(c, req, deps, &r) {
		return
	}
	center := geo.Coordinate{Lat: r.Lat, Lng: r.Lng}
	if !center.IsFinite() {
		sendErr(c, req, deps, world.NewRuleError(world.CodeValidationFailed, "center is not a finite coordinate"))
		return
	}
	radius := r.Radius
	if radius <= 0 {
		radius = defaultViewRadius
	}
	if radius > maxViewRadius {
		radius = maxViewRadius
	}

	flags := deps.Ledger.FlagsWithinRadius(center, radius)
	flagData := make([]gateway.FlagData, len(flags))
	for i, f := range flags {
		flagData[i] = gateway.FlagToWire(f)
	}

	areas := deps.Areas.FindIntersecting(geo.BoxAround(center, radius))
	areaData := make([]gateway.AreaData, len(areas))
	for i, a := range areas {
		areaData[i] = gateway.AreaToWire(a)
	}

	c.Send(gateway.Reply(req, mapViewReply{
		Center: gateway.LatLng{Lat: center.Lat, Lng: center.Lng},
		Radius: radius,
		Flags:  flagData,
		Areas:  areaData,
	}))
}
