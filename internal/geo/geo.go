// Package geo provides the distance and bearing math used for approach
// guidance.
//
// Distances use Vincenty's inverse solution on the WGS84 ellipsoid, with a
// spherical (haversine) fallback for the near-antipodal cases where Vincenty
// does not converge. All functions are pure.
package geo

import "math"

const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	wgs84B = wgs84A * (1 - wgs84F)

	// EarthRadiusM is the mean radius used by the spherical formulas.
	EarthRadiusM = 6371000.0

	MetersPerNM = 1852.0

	vincentyTolerance     = 1e-12
	vincentyMaxIterations = 100
)

func rad(deg float64) float64 { return deg * math.Pi / 180.0 }
func deg(rad float64) float64 { return rad * 180.0 / math.Pi }

// EllipsoidalDistanceNM returns the WGS84 geodesic distance between two
// points in nautical miles.
func EllipsoidalDistanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	m, ok := vincentyMeters(lat1, lon1, lat2, lon2)
	if !ok {
		return SphericalDistanceNM(lat1, lon1, lat2, lon2)
	}
	return m / MetersPerNM
}

// vincentyMeters reports ok=false when the lambda iteration fails to converge.
func vincentyMeters(lat1, lon1, lat2, lon2 float64) (float64, bool) {
	if lat1 == lat2 && lon1 == lon2 {
		return 0, true
	}

	L := rad(lon2 - lon1)
	U1 := math.Atan((1 - wgs84F) * math.Tan(rad(lat1)))
	U2 := math.Atan((1 - wgs84F) * math.Tan(rad(lat2)))
	sinU1, cosU1 := math.Sincos(U1)
	sinU2, cosU2 := math.Sincos(U2)

	lambda := L
	var sinSigma, cosSigma, sigma, cosSqAlpha, cos2SigmaM float64
	converged := false
	for i := 0; i < vincentyMaxIterations; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)
		a := cosU2 * sinLambda
		b := cosU1*sinU2 - sinU1*cosU2*cosLambda
		sinSigma = math.Sqrt(a*a + b*b)
		if sinSigma == 0 {
			return 0, true
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		} else {
			// Both points on the equator.
			cos2SigmaM = 0
		}
		C := wgs84F / 16 * cosSqAlpha * (4 + wgs84F*(4-3*cosSqAlpha))
		prev := lambda
		lambda = L + (1-C)*wgs84F*sinAlpha*
			(sigma+C*sinSigma*(cos2SigmaM+C*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) <= vincentyTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return 0, false
	}

	uSq := cosSqAlpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
	return wgs84B * A * (sigma - deltaSigma), true
}

// SphericalDistanceNM is the haversine great-circle distance in nautical
// miles on a sphere of radius EarthRadiusM.
func SphericalDistanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := rad(lat1)
	phi2 := rad(lat2)
	dPhi := rad(lat2 - lat1)
	dLambda := rad(lon2 - lon1)

	s1 := math.Sin(dPhi / 2)
	s2 := math.Sin(dLambda / 2)
	a := s1*s1 + math.Cos(phi1)*math.Cos(phi2)*s2*s2
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c / MetersPerNM
}

// ForwardAzimuthDeg returns the initial true bearing from point 1 to point 2
// in [0, 360). Coincident points yield 0.
func ForwardAzimuthDeg(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	phi1 := rad(lat1)
	phi2 := rad(lat2)
	dLambda := rad(lon2 - lon1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return NormalizeBearingDeg(deg(math.Atan2(y, x)))
}

// Destination projects meters along bearingDeg from (latDeg, lonDeg) on a
// sphere of radius EarthRadiusM.
func Destination(latDeg, lonDeg, bearingDeg, meters float64) (float64, float64) {
	delta := meters / EarthRadiusM
	theta := rad(bearingDeg)
	phi1 := rad(latDeg)
	lambda1 := rad(lonDeg)

	sinPhi1, cosPhi1 := math.Sincos(phi1)
	sinDelta, cosDelta := math.Sincos(delta)

	phi2 := math.Asin(sinPhi1*cosDelta + cosPhi1*sinDelta*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(math.Sin(theta)*sinDelta*cosPhi1, cosDelta-sinPhi1*math.Sin(phi2))
	return deg(phi2), deg(lambda2)
}

// NormalizeBearingDeg maps any angle into [0, 360).
func NormalizeBearingDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// NormalizeRelativeDeg maps any angle into (-180, 180].
func NormalizeRelativeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}
