// Package suncalc computes solar event times for webcam locations.
package suncalc

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sj14/astral/pkg/astral"

	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
)

// Depression is the twilight depression angle used for FirstLight and
// LastLight. Nautical (-12°): scheduling windows and retention targets
// derive from this value, so it must not change per call site.
const Depression = astral.DepressionNautical

// SolarTimes holds the calculated sun event times for one UTC calendar day
// at a fixed location. A zero time means the event does not occur on that
// day (polar day/night); callers must check before using a value.
type SolarTimes struct {
	FirstLight time.Time // nautical dawn, UTC
	Sunrise    time.Time // UTC
	Sunset     time.Time // UTC
	LastLight  time.Time // nautical dusk, UTC
	DayLength  float64   // sunset-sunrise in hours, NaN when either is missing
}

// HasSunrise reports whether both sunrise and first light occur.
func (st *SolarTimes) HasSunrise() bool {
	return !st.Sunrise.IsZero() && !st.FirstLight.IsZero()
}

// HasSunset reports whether both sunset and last light occur.
func (st *SolarTimes) HasSunset() bool {
	return !st.Sunset.IsZero() && !st.LastLight.IsZero()
}

// Calculate returns the sun event times for the UTC calendar day containing
// the given instant. Latitude must be in [-90, 90] and longitude in
// [-180, 180]; violations fail with a validation error. A non-occurring
// event is reported as a zero time, not as an error.
func Calculate(latitude, longitude float64, at time.Time) (SolarTimes, error) {
	if latitude < -90 || latitude > 90 || math.IsNaN(latitude) {
		return SolarTimes{}, errors.Newf("latitude %v out of range [-90, 90]", latitude).
			Component("suncalc").
			Category(errors.CategoryValidation).
			Build()
	}
	if longitude < -180 || longitude > 180 || math.IsNaN(longitude) {
		return SolarTimes{}, errors.Newf("longitude %v out of range [-180, 180]", longitude).
			Component("suncalc").
			Category(errors.CategoryValidation).
			Build()
	}

	observer := astral.Observer{Latitude: latitude, Longitude: longitude}
	date := at.UTC()

	var st SolarTimes

	// astral reports "sun never reaches" conditions as errors; those are
	// valid outputs here, signalled by zero times.
	if firstLight, err := astral.Dawn(observer, date, Depression); err == nil {
		st.FirstLight = firstLight.UTC()
	}
	if sunrise, err := astral.Sunrise(observer, date); err == nil {
		st.Sunrise = sunrise.UTC()
	}
	if sunset, err := astral.Sunset(observer, date); err == nil {
		st.Sunset = sunset.UTC()
	}
	if lastLight, err := astral.Dusk(observer, date, Depression); err == nil {
		st.LastLight = lastLight.UTC()
	}

	if st.Sunrise.IsZero() || st.Sunset.IsZero() {
		st.DayLength = math.NaN()
	} else {
		// May be negative when the pair straddles UTC midnight; callers
		// needing a duration must take the absolute value.
		st.DayLength = st.Sunset.Sub(st.Sunrise).Hours()
	}

	return st, nil
}

// ParseLatLon parses a trimmed "lat,lon" string into coordinates.
func ParseLatLon(text string) (latitude, longitude float64, err error) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) != 2 {
		return 0, 0, errors.Newf("location %q is not a lat,lon pair", text).
			Component("suncalc").
			Category(errors.CategoryFormat).
			Build()
	}

	latitude, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, errors.Newf("location %q has non-numeric latitude %q", text, parts[0]).
			Component("suncalc").
			Category(errors.CategoryValidation).
			Build()
	}

	longitude, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, errors.Newf("location %q has non-numeric longitude %q", text, parts[1]).
			Component("suncalc").
			Category(errors.CategoryValidation).
			Build()
	}

	return latitude, longitude, nil
}

// ForWebcam is the resilient entry point used by scheduling and retention
// code. It returns nil, never an error, when the location string is empty,
// unparseable or out of range.
func ForWebcam(location string, at time.Time) *SolarTimes {
	if location == "" {
		return nil
	}

	latitude, longitude, err := ParseLatLon(location)
	if err != nil {
		return nil
	}

	st, err := Calculate(latitude, longitude, at)
	if err != nil {
		return nil
	}

	return &st
}

// IsDaylight reports whether the instant falls within the day's padded light
// window: [firstLight - ¼(sunrise-firstLight), lastLight + ¼(lastLight-sunset)].
// It defaults to true when solar times cannot be computed, so that cameras
// without a usable location keep capturing around the clock.
func IsDaylight(location string, at time.Time) bool {
	st := ForWebcam(location, at)
	if st == nil || !st.HasSunrise() || !st.HasSunset() {
		return true
	}

	dawnTwilight := st.Sunrise.Sub(st.FirstLight)
	duskTwilight := st.LastLight.Sub(st.Sunset)
	start := st.FirstLight.Add(-dawnTwilight / 4)
	end := st.LastLight.Add(duskTwilight / 4)

	return !at.Before(start) && !at.After(end)
}

// cacheEntry holds the cached sun event times for a location and date
type cacheEntry struct {
	times SolarTimes
	err   error
}

// SunCalc caches solar calculations per (coordinates, UTC date). Scheduling
// and retention both walk webcam/day combinations, so the same day is
// requested repeatedly within one tick.
type SunCalc struct {
	cache map[string]cacheEntry
	lock  sync.RWMutex
}

// NewSunCalc creates a new SunCalc instance
func NewSunCalc() *SunCalc {
	return &SunCalc{cache: make(map[string]cacheEntry)}
}

// Times returns the solar times for the UTC day of the given instant at the
// given coordinates, using the cache when available.
func (sc *SunCalc) Times(latitude, longitude float64, at time.Time) (SolarTimes, error) {
	key := strconv.FormatFloat(latitude, 'f', 6, 64) + "," +
		strconv.FormatFloat(longitude, 'f', 6, 64) + ":" +
		at.UTC().Format("2006-01-02")

	sc.lock.RLock()
	entry, exists := sc.cache[key]
	sc.lock.RUnlock()

	if exists {
		return entry.times, entry.err
	}

	times, err := Calculate(latitude, longitude, at)

	sc.lock.Lock()
	sc.cache[key] = cacheEntry{times: times, err: err}
	sc.lock.Unlock()

	return times, err
}

// TimesForLocation is Times for a "lat,lon" location string.
func (sc *SunCalc) TimesForLocation(location string, at time.Time) (SolarTimes, error) {
	latitude, longitude, err := ParseLatLon(location)
	if err != nil {
		return SolarTimes{}, err
	}
	return sc.Times(latitude, longitude, at)
}
