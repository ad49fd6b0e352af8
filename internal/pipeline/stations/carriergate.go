package stations

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// CarrierGate validates the found phone against the carrier lookup and ends
// the run early for numbers not worth contacting. Only mobile lines pass;
// VOIP, landline, and junk all stop the route before any more money is spent.
// Lookup failures fail open.
type CarrierGate struct {
	validator enrichment.PhoneValidator
	logger    *slog.Logger
}

func NewCarrierGate(validator enrichment.PhoneValidator, logger *slog.Logger) *CarrierGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &CarrierGate{validator: validator, logger: logger}
}

func (s *CarrierGate) Name() string { return "Telnyx Gatekeep" }

func (s *CarrierGate) RequiredInputs() []string { return []string{"phone"} }

func (s *CarrierGate) ProducesOutputs() []string {
	return []string{"is_valid", "is_mobile", "line_type", "carrier"}
}

func (s *CarrierGate) CostEstimate() float64 { return 0.01 }

func (s *CarrierGate) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	phone := pctx.Data.GetString("phone")

	if !enrichment.PlausiblePhone(phone) {
		s.logger.Warn("phone failed plausibility check, stopping route", slog.String("phone", phone))
		return map[string]any{"is_valid": false, "is_mobile": false, "line_type": "junk"},
			pipeline.SkipRemaining, nil
	}

	v, err := s.validator.Validate(ctx, phone)
	if err != nil {
		// Fail open: a broken lookup should not kill an otherwise good lead.
		s.logger.Error("carrier lookup error, passing phone through", slog.String("error", err.Error()))
		return nil, pipeline.Continue, nil
	}

	out := map[string]any{
		"is_valid":  v.Valid,
		"is_mobile": v.IsMobile(),
		"line_type": v.LineType,
		"carrier":   v.CarrierName,
	}

	switch {
	case !v.Valid:
		s.logger.Warn("phone rejected as invalid", slog.String("carrier", v.CarrierName))
		return out, pipeline.SkipRemaining, nil
	case v.LineType == "voip" || v.LineType == "landline":
		s.logger.Warn("phone rejected, not a mobile line",
			slog.String("line_type", v.LineType),
			slog.String("carrier", v.CarrierName),
		)
		return out, pipeline.SkipRemaining, nil
	}

	s.logger.Info("phone validated", slog.String("carrier", v.CarrierName), slog.String("line_type", v.LineType))
	return out, pipeline.Continue, nil
}
