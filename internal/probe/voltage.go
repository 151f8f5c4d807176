package probe

import (
	"context"
	"strconv"
	"strings"

	"benchd.sh/internal/ferrors"
	"benchd.sh/internal/models"
)

// Throttle bits reported by `vcgencmd get_throttled`
const (
	ThrottleUnderVoltage            = 1 << 0
	ThrottleFrequencyCapped         = 1 << 1
	ThrottleThrottled               = 1 << 2
	ThrottleSoftTempLimit           = 1 << 3
	ThrottleUnderVoltageOccurred    = 1 << 16
	ThrottleFrequencyCappedOccurred = 1 << 17
	ThrottleThrottledOccurred       = 1 << 18
	ThrottleSoftTempLimitOccurred   = 1 << 19
)

// Voltage reads the throttle bitmask. Output without a decodable value is
// treated as unavailable.
func (p *Prober) Voltage(ctx context.Context) Result[models.VoltageInfo] {
	out, err := p.src.Runner.Run(ctx, "vcgencmd", "get_throttled")
	if err != nil {
		return FromError[models.VoltageInfo](err)
	}
	info, err := ParseThrottled(out)
	if err != nil {
		return FromError[models.VoltageInfo](err)
	}
	return OK(info)
}

// ParseThrottled decodes `throttled=0x50005`
func ParseThrottled(out string) (models.VoltageInfo, error) {
	_, hexValue, ok := strings.Cut(strings.TrimSpace(out), "=")
	if !ok {
		return models.VoltageInfo{}, ferrors.Wrapf(ferrors.ErrParseFailure, "parse %q", out)
	}

	value, err := ThrottledValue(hexValue)
	if err != nil {
		return models.VoltageInfo{}, ferrors.Wrapf(ferrors.ErrParseFailure, "parse %q", out)
	}

	flags := DecodeThrottled(value)
	info := models.VoltageInfo{
		Raw:       out,
		HexValue:  &hexValue,
		Flags:     &flags,
		Status:    models.VoltageOK,
		Available: true,
	}
	if value != 0 {
		info.Status = models.VoltageWarning
	}
	return info, nil
}

// ThrottledValue parses the hex payload, with or without a 0x prefix
func ThrottledValue(hexValue string) (uint64, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(hexValue, "0x"), "0X")
	return strconv.ParseUint(digits, 16, 64)
}

// DecodeThrottled maps the bitmask onto named flags
func DecodeThrottled(v uint64) models.ThrottleFlags {
	return models.ThrottleFlags{
		UnderVoltage:            v&ThrottleUnderVoltage != 0,
		FrequencyCapped:         v&ThrottleFrequencyCapped != 0,
		Throttled:               v&ThrottleThrottled != 0,
		SoftTempLimit:           v&ThrottleSoftTempLimit != 0,
		UnderVoltageOccurred:    v&ThrottleUnderVoltageOccurred != 0,
		FrequencyCappedOccurred: v&ThrottleFrequencyCappedOccurred != 0,
		ThrottledOccurred:       v&ThrottleThrottledOccurred != 0,
		SoftTempLimitOccurred:   v&ThrottleSoftTempLimitOccurred != 0,
	}
}
