package filters

import (
	"encoding/json"
	"fmt"
)

type Band struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

// Oscillation is shared by tremolo and vibrato.
type Oscillation struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}

// Filters is the full filter set of a player. The node replaces its whole
// set on every update, so nil fields switch that filter off and the zero
// value clears everything.
type Filters struct {
	Volume        *float64                   `json:"volume,omitempty"`
	Equalizer     []Band                     `json:"equalizer,omitempty"`
	Karaoke       *Karaoke                   `json:"karaoke,omitempty"`
	Timescale     *Timescale                 `json:"timescale,omitempty"`
	Tremolo       *Oscillation               `json:"tremolo,omitempty"`
	Vibrato       *Oscillation               `json:"vibrato,omitempty"`
	Rotation      *Rotation                  `json:"rotation,omitempty"`
	Distortion    *Distortion                `json:"distortion,omitempty"`
	ChannelMix    *ChannelMix                `json:"channelMix,omitempty"`
	LowPass       *LowPass                   `json:"lowPass,omitempty"`
	PluginFilters map[string]json.RawMessage `json:"pluginFilters,omitempty"`
}

func (f Filters) IsZero() bool {
	return f.Volume == nil && len(f.Equalizer) == 0 && f.Karaoke == nil && f.Timescale == nil &&
		f.Tremolo == nil && f.Vibrato == nil && f.Rotation == nil && f.Distortion == nil &&
		f.ChannelMix == nil && f.LowPass == nil && len(f.PluginFilters) == 0
}

// Builder assembles a Filters value and validates ranges the node would
// otherwise reject with a 400.
type Builder struct {
	f   Filters
	err error
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Volume(v float64) *Builder {
	if v < 0 || v > 5 {
		b.fail("volume must be within 0.0-5.0, got %v", v)
		return b
	}
	b.f.Volume = &v
	return b
}

func (b *Builder) Equalizer(band int, gain float64) *Builder {
	if band < 0 || band > 14 {
		b.fail("equalizer band must be within 0-14, got %d", band)
		return b
	}
	if gain < -0.25 || gain > 1.0 {
		b.fail("equalizer gain must be within -0.25-1.0, got %v", gain)
		return b
	}
	b.f.Equalizer = append(b.f.Equalizer, Band{Band: band, Gain: gain})
	return b
}

func (b *Builder) Karaoke(k Karaoke) *Builder {
	b.f.Karaoke = &k
	return b
}

func (b *Builder) Timescale(t Timescale) *Builder {
	if t.Speed < 0 || t.Pitch < 0 || t.Rate < 0 {
		b.fail("timescale values must be positive")
		return b
	}
	b.f.Timescale = &t
	return b
}

func (b *Builder) Tremolo(o Oscillation) *Builder {
	if err := o.validate("tremolo", 0); err != nil {
		b.err = err
		return b
	}
	b.f.Tremolo = &o
	return b
}

func (b *Builder) Vibrato(o Oscillation) *Builder {
	if err := o.validate("vibrato", 14); err != nil {
		b.err = err
		return b
	}
	b.f.Vibrato = &o
	return b
}

func (b *Builder) Rotation(hz float64) *Builder {
	b.f.Rotation = &Rotation{RotationHz: hz}
	return b
}

func (b *Builder) Distortion(d Distortion) *Builder {
	b.f.Distortion = &d
	return b
}

func (b *Builder) ChannelMix(c ChannelMix) *Builder {
	for _, v := range []float64{c.LeftToLeft, c.LeftToRight, c.RightToLeft, c.RightToRight} {
		if v < 0 || v > 1 {
			b.fail("channel mix values must be within 0.0-1.0")
			return b
		}
	}
	b.f.ChannelMix = &c
	return b
}

func (b *Builder) LowPass(smoothing float64) *Builder {
	if smoothing <= 1 {
		b.fail("low pass smoothing must be greater than 1.0, got %v", smoothing)
		return b
	}
	b.f.LowPass = &LowPass{Smoothing: smoothing}
	return b
}

func (b *Builder) Plugin(name string, value json.RawMessage) *Builder {
	if b.f.PluginFilters == nil {
		b.f.PluginFilters = map[string]json.RawMessage{}
	}
	b.f.PluginFilters[name] = value
	return b
}

// Build returns the assembled filters or the first validation error.
func (b *Builder) Build() (Filters, error) {
	if b.err != nil {
		return Filters{}, b.err
	}
	return b.f, nil
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("filters: "+format, args...)
	}
}

func (o Oscillation) validate(name string, maxFreq float64) error {
	if o.Frequency <= 0 || (maxFreq > 0 && o.Frequency > maxFreq) {
		return fmt.Errorf("filters: %s frequency out of range: %v", name, o.Frequency)
	}
	if o.Depth <= 0 || o.Depth > 1 {
		return fmt.Errorf("filters: %s depth must be within (0, 1], got %v", name, o.Depth)
	}
	return nil
}
