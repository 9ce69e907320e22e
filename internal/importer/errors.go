package importer

import (
	"errors"
	"fmt"

	"github.com/desertthunder/histx/internal/models"
)

// Error is a classified import failure.
type Error struct {
	Status   models.ImportStatus
	Platform models.Platform
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Platform, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Guidance tells the user what to upload instead.
func (e *Error) Guidance() string {
	return Guidance(e.Platform, e.Status)
}

func unknownFailure(p models.Platform, detail string, err error) *Error {
	return &Error{Status: models.StatusUnknownFailure, Platform: p, Detail: detail, Err: err}
}

func wrongPackage(p models.Platform, detail string) *Error {
	return &Error{Status: models.StatusWrongPackageFailure, Platform: p, Detail: detail}
}

func wrongFormat(p models.Platform, detail string) *Error {
	return &Error{Status: models.StatusWrongFormatFailure, Platform: p, Detail: detail}
}

// NoUsablePlays is returned when every record was dropped during canonicalization.
func NoUsablePlays(p models.Platform, found int) *Error {
	return &Error{
		Status:   models.StatusNoUsablePlaysFailure,
		Platform: p,
		Detail:   fmt.Sprintf("none of %d records were usable plays", found),
	}
}

// Classify extracts the status and guidance from err.
//
// Errors that are not an [*Error] are unknown failures.
func Classify(p models.Platform, err error) (models.ImportStatus, string) {
	if err == nil {
		return models.StatusSuccess, ""
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Status, ie.Guidance()
	}
	return models.StatusUnknownFailure, Guidance(p, models.StatusUnknownFailure)
}

// Guidance returns actionable advice for a failed import.
func Guidance(p models.Platform, status models.ImportStatus) string {
	switch p {
	case models.PlatformSpotify:
		return spotifyGuidance(status)
	case models.PlatformAppleMusic:
		return appleMusicGuidance(status)
	}
	return "Choose a supported platform: spotify or applemusic."
}

func spotifyGuidance(status models.ImportStatus) string {
	switch status {
	case models.StatusWrongPackageFailure:
		return "This is the Spotify \"Account data\" package, which has no full listening history. " +
			"On spotify.com/account/privacy request \"Extended streaming history\" instead, then upload the " +
			"my_spotify_data.zip it produces or the Streaming_History_Audio_*.json files inside it."
	case models.StatusWrongFormatFailure, models.StatusUnknownFailure:
		return "The upload could not be read as a Spotify export. Upload the unmodified my_spotify_data.zip from " +
			"\"Extended streaming history\", or the Streaming_History_Audio_*.json (or endsong_*.json) files from it. " +
			"If the files are correct, try again."
	case models.StatusNoUsablePlaysFailure:
		return "The export contained no plays with a listening duration. Make sure you uploaded the audio history " +
			"files (Streaming_History_Audio_*.json), not only the video or podcast files."
	}
	return ""
}

func appleMusicGuidance(status models.ImportStatus) string {
	switch status {
	case models.StatusWrongPackageFailure:
		return "This archive does not contain Apple Music play activity. On privacy.apple.com request a copy of your " +
			"data and select \"Apple Media Services information\", then upload the archive or the " +
			"\"Apple Music Play Activity.csv\" file from it."
	case models.StatusWrongFormatFailure:
		return "The CSV does not look like \"Apple Music Play Activity.csv\". It needs the columns Song Name, " +
			"Album Name, Play Duration Milliseconds and Event Start Timestamp. Upload that file unmodified."
	case models.StatusUnknownFailure:
		return "The upload could not be read. Upload \"Apple Music Play Activity.csv\" or the Apple Media Services " +
			"archive that contains it. If the file is correct, try again."
	case models.StatusNoUsablePlaysFailure:
		return "No plays could be used: every row had no play duration or its artist could not be found. " +
			"Check that the file is \"Apple Music Play Activity.csv\"."
	}
	return ""
}
