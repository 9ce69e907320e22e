package importer

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/desertthunder/histx/internal/models"
)

func TestClassify(t *testing.T) {
	p := models.PlatformSpotify

	if status, guidance := Classify(p, nil); status != models.StatusSuccess || guidance != "" {
		t.Errorf("expected success without guidance, got %s %q", status, guidance)
	}

	wrapped := fmt.Errorf("parse: %w", wrongPackage(p, "account data"))
	if status, _ := Classify(p, wrapped); status != models.StatusWrongPackageFailure {
		t.Errorf("expected wrapped classification to survive, got %s", status)
	}

	if status, guidance := Classify(p, errors.New("disk on fire")); status != models.StatusUnknownFailure || guidance == "" {
		t.Errorf("expected unknown failure with guidance, got %s %q", status, guidance)
	}
}

func TestGuidance(t *testing.T) {
	failures := []models.ImportStatus{
		models.StatusUnknownFailure,
		models.StatusWrongPackageFailure,
		models.StatusWrongFormatFailure,
		models.StatusNoUsablePlaysFailure,
	}

	for _, p := range models.Platforms {
		for _, s := range failures {
			if Guidance(p, s) == "" {
				t.Errorf("expected guidance for %s %s", p, s)
			}
		}
		if Guidance(p, models.StatusSuccess) != "" {
			t.Errorf("expected no guidance for %s success", p)
		}
	}

	if !strings.Contains(Guidance(models.PlatformSpotify, models.StatusWrongPackageFailure), "Extended streaming history") {
		t.Error("expected spotify wrong-package guidance to name the extended history export")
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := unknownFailure(models.PlatformAppleMusic, "row 3", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
	msg := err.Error()
	for _, want := range []string{"applemusic", "unknown-failure", "row 3", "unexpected EOF"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}

	np := NoUsablePlays(models.PlatformSpotify, 12)
	if np.Status != models.StatusNoUsablePlaysFailure || !strings.Contains(np.Error(), "12") {
		t.Errorf("unexpected no-usable-plays error %v", np)
	}
}
