package counters

import "fmt"

// SourceInfo is the interval triple reported for one counter.
type SourceInfo struct {
	Min     uint64 `yaml:"min" json:"min" cbor:"min"`
	Max     uint64 `yaml:"max" json:"max" cbor:"max"`
	Nominal uint64 `yaml:"nominal" json:"nominal" cbor:"nominal"`
}

// Resolver picks the sampling interval for a counter.
type Resolver func(SourceInfo) uint64

// DefaultResolver clamps the nominal interval into [Min, Max]. Behaviour
// when Min > Max is undefined.
func DefaultResolver(s SourceInfo) uint64 {
	return max(s.Min, min(s.Max, s.Nominal))
}

const (
	PolicyDefault = "default"
	PolicyMin     = "min"
	PolicyMax     = "max"
	PolicyNominal = "nominal"
	PolicyFixed   = "fixed"
)

// PolicyResolver maps a configured interval policy to a Resolver.
// A fixed policy is taken as given and is not clamped.
func PolicyResolver(policy string, value uint64) (Resolver, error) {
	switch policy {
	case "", PolicyDefault:
		return DefaultResolver, nil
	case PolicyMin:
		return func(s SourceInfo) uint64 { return s.Min }, nil
	case PolicyMax:
		return func(s SourceInfo) uint64 { return s.Max }, nil
	case PolicyNominal:
		return func(s SourceInfo) uint64 { return s.Nominal }, nil
	case PolicyFixed:
		if value == 0 {
			return nil, fmt.Errorf("fixed interval policy needs a non-zero value")
		}
		return func(SourceInfo) uint64 { return value }, nil
	default:
		return nil, fmt.Errorf("unknown interval policy %q", policy)
	}
}
