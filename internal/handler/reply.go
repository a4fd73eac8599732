package handler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/wardstone/server/internal/gateway"
	"github.com/wardstone/server/internal/world"
)

// decode unmarshals the request payload, answering validation_failed on
// malformed data. Returns false when the handler should stop.
func decode(c gateway.Client, req *gateway.Envelope, deps *Deps, v any) bool {
	if err := json.Unmarshal(req.Data, v); err != nil {
		deps.Metrics.RecordReject(string(world.CodeValidationFailed))
		c.Send(gateway.ReplyError(req, string(world.CodeValidationFailed), "malformed request data"))
		return false
	}
	return true
}

// sendErr answers a failed operation. Rule rejections go back with their
// code and reason; anything else is an infrastructure fault that gets
// logged and answered with an opaque internal error.
func sendErr(c gateway.Client, req *gateway.Envelope, deps *Deps, err error) {
	if re, ok := world.AsRule(err); ok {
		deps.Metrics.RecordReject(string(re.Code))
		c.Send(gateway.ReplyError(req, string(re.Code), re.Reason))
		return
	}
	deps.Log.Error("handler failed",
		zap.String("type", req.Type),
		zap.Int64("player", c.PlayerID()),
		zap.Error(err))
	deps.Metrics.RecordReject("internal")
	c.Send(gateway.ReplyError(req, "internal", "internal error"))
}
