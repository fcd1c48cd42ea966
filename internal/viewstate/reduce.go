package viewstate

// EnterKey is the only key that triggers a search from the location input
const EnterKey = "Enter"

// Reduce applies ev to s and returns the next state with the effects to run.
// It never blocks and never performs I/O.
func Reduce(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case QueryChanged:
		s.LocationQuery = ev.Query
		return s, nil
	case SearchRequested:
		return beginSearch(s)
	case KeyPressed:
		if ev.Key != EnterKey {
			return s, nil
		}
		return beginSearch(s)
	case SearchSettled:
		return settleSearch(s, ev)
	case ErrorDismissed:
		s.clearError()
		return s, nil
	case ErrorExpired:
		// A newer error (or a dismissal) owns the field now.
		if ev.Gen == s.errorGen {
			s.clearError()
		}
		return s, nil
	case UnitSelected:
		s.Unit = ev.Unit
		s.Weather = nil
		return s, nil
	case MapToggled:
		return toggleMap(s)
	case GeolocationSettled:
		return settleGeolocation(s, ev)
	}
	return s, nil
}

func beginSearch(s State) (State, []Effect) {
	s.Loading = true
	s.fetchSeq++
	s.fetchIn = true
	return s, []Effect{FetchWeather{Seq: s.fetchSeq, Query: s.LocationQuery, Unit: s.Unit}}
}

func settleSearch(s State, ev SearchSettled) (State, []Effect) {
	if ev.Seq != s.fetchSeq || !s.fetchIn {
		return s, nil
	}
	s.fetchIn = false
	s.Loading = false

	var effects []Effect
	if ev.Failure != nil {
		msg := ev.Failure.Message
		if msg == "" {
			msg = DefaultErrorMessage
		}
		s.setError(msg)
		s.Weather = nil
	} else {
		// A snapshot fetched in the previously selected unit is not shown.
		if ev.Weather != nil && ev.Unit == s.Unit {
			w := *ev.Weather
			s.Weather = &w
			effects = append(effects, RecordLookup{Query: ev.Query, Weather: w})
		}
		s.clearError()
	}

	s.LocationQuery = ""
	return s, append(effects, ScheduleErrorExpiry{Gen: s.errorGen, After: s.errorExpiry})
}

func toggleMap(s State) (State, []Effect) {
	if s.MapOpen() {
		s.Coordinates = nil
		return s, nil
	}
	if !s.geolocationSupported {
		s.setError(GeolocationUnsupportedMessage)
		return s, nil
	}

	var effects []Effect
	if s.GeolocationPending {
		effects = append(effects, CancelGeolocation{Seq: s.geoSeq})
	}
	s.geoSeq++
	s.GeolocationPending = true
	return s, append(effects, RequestGeolocation{Seq: s.geoSeq})
}

func settleGeolocation(s State, ev GeolocationSettled) (State, []Effect) {
	if ev.Seq != s.geoSeq || !s.GeolocationPending {
		return s, nil
	}
	s.GeolocationPending = false

	if ev.Failure != nil || ev.Coordinates == nil {
		msg := GeolocationFailedMessage
		if ev.Failure != nil && ev.Failure.Message != "" {
			msg = ev.Failure.Message
		}
		s.setError(msg)
		return s, nil
	}

	c := *ev.Coordinates
	s.Coordinates = &c
	s.clearError()
	return s, nil
}
