package maker

import "math"

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// BlackScholes prices a European call and put.
//
//	spot   - current price
//	strike - strike price
//	vol    - volatility over one unit of T
//	T      - time remaining, in units of the vol interval
//	r      - risk-free rate, continuously compounded
func BlackScholes(spot, strike, vol, T, r float64) (call, put float64) {
	var d1 float64
	if vol > 0 {
		d1 = (math.Log(spot/strike) + (r+vol*vol/2)*T) / (vol * math.Sqrt(T))
	}
	d2 := d1 - vol*math.Sqrt(T)

	call = spot*normCDF(d1) - strike*normCDF(d2)*math.Exp(-r*T)
	put = call - spot + strike*math.Exp(-r*T)
	return call, put
}

// PremiumsATM returns the at-the-money option premium per duration bucket:
// the midpoint of the call and put priced with strike = spot and time scaled
// to the feed's vol interval (vol arrives scaled to volInterval seconds).
func PremiumsATM(spot, vol, volInterval float64, buckets []int64) map[int64]float64 {
	premiums := make(map[int64]float64, len(buckets))
	for _, bucket := range buckets {
		call, put := BlackScholes(spot, spot, vol, float64(bucket)/volInterval, 0)
		premiums[bucket] = (call + put) / 2
	}
	return premiums
}
