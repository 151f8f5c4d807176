package probe

import (
	"context"
	"math"
	"strconv"
	"strings"

	"benchd.sh/internal/ferrors"
	"benchd.sh/internal/models"
)

// Temperature reads the SoC temperature from vcgencmd, falling back to the
// first kernel sensor whose key mentions cpu or core.
func (p *Prober) Temperature(ctx context.Context) Result[models.TemperatureInfo] {
	out, err := p.src.Runner.Run(ctx, "vcgencmd", "measure_temp")
	if err == nil {
		var celsius float64
		celsius, err = ParseMeasureTemp(out)
		if err == nil {
			return OK(models.TemperatureInfo{Raw: out, Celsius: &celsius, Available: true})
		}
	}
	p.logger.Debug("vcgencmd temperature unavailable, trying kernel sensors", "error", err)

	if celsius, ok := p.sensorTemperature(ctx); ok {
		return OK(models.TemperatureInfo{Raw: formatCelsius(celsius), Celsius: &celsius, Available: true})
	}

	return Unavailable[models.TemperatureInfo]("no temperature source")
}

// ParseMeasureTemp parses `temp=48.3'C`
func ParseMeasureTemp(out string) (float64, error) {
	value, ok := strings.CutPrefix(strings.TrimSpace(out), "temp=")
	if !ok {
		return 0, ferrors.Wrapf(ferrors.ErrParseFailure, "parse %q", out)
	}
	value = strings.TrimSuffix(value, "'C")

	celsius, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, ferrors.Wrapf(ferrors.ErrParseFailure, "parse %q", out)
	}
	return celsius, nil
}

func (p *Prober) sensorTemperature(ctx context.Context) (float64, bool) {
	if p.src.Sensors == nil {
		return 0, false
	}

	// partial results come back alongside a warnings error
	sensors, err := p.src.Sensors(ctx)
	if len(sensors) == 0 {
		if err != nil {
			p.logger.Debug("Kernel temperature sensors unavailable", "error", err)
		}
		return 0, false
	}

	for _, s := range sensors {
		key := strings.ToLower(s.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "core") {
			return s.Temperature, true
		}
	}
	return 0, false
}

// formatCelsius keeps one decimal for whole numbers so 48 reads "48.0°C"
func formatCelsius(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64) + "°C"
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + "°C"
}
