package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Constructor builds a plugin variant from its JSON parameter document.
type Constructor func(params gjson.Result) (Strategy, error)

var constructors = map[string]Constructor{
	"ma_cross": func(p gjson.Result) (Strategy, error) {
		return NewMACross(int(p.Get("fast_period").Int()), int(p.Get("slow_period").Int()))
	},
	"rsi_reversal": func(p gjson.Result) (Strategy, error) {
		return NewRSIReversal(int(p.Get("period").Int()), p.Get("oversold").Float(), p.Get("overbought").Float())
	},
	"macd_momentum": func(p gjson.Result) (Strategy, error) {
		return NewMACDMomentum(int(p.Get("fast_period").Int()), int(p.Get("slow_period").Int()), int(p.Get("signal_period").Int()))
	},
	"channel_breakout": func(p gjson.Result) (Strategy, error) {
		return NewChannelBreakout(int(p.Get("period").Int()))
	},
	"bollinger_reversion": func(p gjson.Result) (Strategy, error) {
		return NewBollingerReversion(int(p.Get("period").Int()), p.Get("stddev").Float())
	},
	"cloud_trend": func(p gjson.Result) (Strategy, error) {
		return NewCloudTrend(int(p.Get("conversion_period").Int()), int(p.Get("base_period").Int()))
	},
}

// New builds the plugin for kind from a JSON parameter document. Missing
// parameters fall back to the variant's defaults; an empty document is valid.
func New(kind, paramsJSON string) (Strategy, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown strategy kind %q", kind)
	}
	if strings.TrimSpace(paramsJSON) != "" && !gjson.Valid(paramsJSON) {
		return nil, fmt.Errorf("strategy params for %q are not valid JSON", kind)
	}
	return ctor(gjson.Parse(paramsJSON))
}

// Kinds lists the registered plugin variants, sorted.
func Kinds() []string {
	out := make([]string, 0, len(constructors))
	for k := range constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
