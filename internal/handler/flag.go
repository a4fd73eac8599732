package handler

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/gateway"
	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/world"
)

// maxFlagNameLen bounds flag names in runes.
const maxFlagNameLen = 48

type placeFlagRequest struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Public bool    `json:"public"`
	Toll   float64 `json:"toll"`
}

// HandlePlaceFlag plants a new flag for the requesting player.
func HandlePlaceFlag(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	var r placeFlagRequest
	if !decode(c, req, deps, &r) {
		return
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		sendErr(c, req, deps, world.NewRuleError(world.CodeValidationFailed, "flag name required"))
		return
	}
	if utf8.RuneCountInString(name) > maxFlagNameLen {
		sendErr(c, req, deps, world.NewRuleError(world.CodeValidationFailed,
			"flag name longer than %d characters", maxFlagNameLen))
		return
	}
	f, err := deps.Ledger.PlaceFlag(ctx, c.PlayerID(), geo.Coordinate{Lat: r.Lat, Lng: r.Lng}, world.PlaceOptions{
		Name:   name,
		Public: r.Public,
		Toll:   r.Toll,
	})
	if err != nil {
		sendErr(c, req, deps, err)
		return
	}
	event.Emit(deps.Bus, world.FlagPlaced{Flag: f})
	c.Send(gateway.Reply(req, gateway.FlagToWire(f)))
}

type flagIDRequest struct {
	FlagID int64 `json:"flag_id"`
}

type removeFlagReply struct {
	FlagID int64        `json:"flag_id"`
	Refund world.Refund `json:"refund"`
}

// HandleRemoveFlag tears down one of the player's own flags and reports
// the material refund.
func HandleRemoveFlag(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	var r flagIDRequest
	if !decode(c, req, deps, &r) {
		return
	}
	refund, err := deps.Ledger.RemoveFlag(c.PlayerID(), r.FlagID)
	if err != nil {
		sendErr(c, req, deps, err)
		return
	}
	event.Emit(deps.Bus, world.FlagRemoved{FlagID: r.FlagID, OwnerID: c.PlayerID(), Refund: refund})
	c.Send(gateway.Reply(req, removeFlagReply{FlagID: r.FlagID, Refund: refund}))
}

// HandleHardenFlag upgrades one of the player's flags. Hardening is
// permanent.
func HandleHardenFlag(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	var r flagIDRequest
	if !decode(c, req, deps, &r) {
		return
	}
	if err := deps.Ledger.HardenFlag(c.PlayerID(), r.FlagID); err != nil {
		sendErr(c, req, deps, err)
		return
	}
	event.Emit(deps.Bus, world.FlagHardened{FlagID: r.FlagID, OwnerID: c.PlayerID()})
	f, ok := deps.Ledger.GetFlag(r.FlagID)
	if !ok {
		// removed between harden and read; answer with the id alone
		c.Send(gateway.Reply(req, flagIDRequest{FlagID: r.FlagID}))
		return
	}
	c.Send(gateway.Reply(req, gateway.FlagToWire(f)))
}

type myFlagsReply struct {
	Flags []gateway.FlagData `json:"flags"`
}

// HandleMyFlags lists the player's own flags, oldest first.
func HandleMyFlags(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	owned := deps.Ledger.OwnerFlags(c.PlayerID())
	out := make([]gateway.FlagData, len(owned))
	for i, f := range owned {
		out[i] = gateway.FlagToWire(f)
	}
	c.Send(gateway.Reply(req, myFlagsReply{Flags: out}))
}
