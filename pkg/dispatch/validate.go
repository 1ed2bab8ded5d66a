package dispatch

import (
	"math"
	"unicode/utf8"

	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

// Lengths are counted in code points.

func validateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n < 1 || n > tasklens.MaxTitleLength {
		return invalid("title must be between 1 and %d characters, got %d", tasklens.MaxTitleLength, n)
	}
	return nil
}

func validateNotes(notes string) error {
	if n := utf8.RuneCountInString(notes); n > tasklens.MaxNotesLength {
		return invalid("notes must be at most %d characters, got %d", tasklens.MaxNotesLength, n)
	}
	return nil
}

func validatePlaceName(name string) error {
	if n := utf8.RuneCountInString(name); n < 1 || n > tasklens.MaxPlaceNameLength {
		return invalid("place name must be between 1 and %d characters, got %d", tasklens.MaxPlaceNameLength, n)
	}
	return nil
}

func validateRepeat(rc *tasklens.RepeatConfig) error {
	if rc == nil {
		return nil
	}
	if _, err := tasklens.ParseFrequency(string(rc.Frequency)); err != nil {
		return invalid("%v", err)
	}
	if rc.Interval < 1 {
		return invalid("repeat interval must be positive, got %d", rc.Interval)
	}
	return nil
}

func validatePlaceRef(state *tasklens.TunnelState, id *tasklens.PlaceID) error {
	if id == nil || *id == tasklens.AnywherePlaceID {
		return nil
	}
	if _, ok := state.Places[*id]; !ok {
		return notFound("place %q does not exist", *id)
	}
	return nil
}

func validateIncludedPlaces(state *tasklens.TunnelState, self tasklens.PlaceID, included []tasklens.PlaceID) error {
	for _, id := range included {
		if id == self {
			return structural("place %q cannot include itself", self)
		}
		if err := validatePlaceRef(state, &id); err != nil {
			return err
		}
	}
	return nil
}

// validateFinite rejects NaN and infinities. Nil is allowed.
func validateFinite(field string, v *float64) error {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return invalid("%s must be finite, got %v", field, *v)
	}
	return nil
}
