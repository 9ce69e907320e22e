package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/histx/internal/formatter"
	"github.com/desertthunder/histx/internal/repositories"
)

var (
	_ list.Item = artistItem{}
	_ list.Item = trackItem{}
)

// artistItem wraps [repositories.ArtistCount] to implement [list.Item].
type artistItem struct {
	artist repositories.ArtistCount
}

func (i artistItem) FilterValue() string { return i.artist.Artist }
func (i artistItem) Title() string       { return fmt.Sprintf("%d. %s", i.artist.Rank, i.artist.Artist) }
func (i artistItem) Description() string {
	return fmt.Sprintf("%d plays • %s", i.artist.PlayCount, formatter.FormatDuration(i.artist.MsPlayed))
}

// trackItem wraps [repositories.TrackCount] to implement [list.Item].
type trackItem struct {
	track repositories.TrackCount
}

func (i trackItem) FilterValue() string { return i.track.Track }
func (i trackItem) Title() string       { return fmt.Sprintf("%d. %s", i.track.Rank, i.track.Track) }
func (i trackItem) Description() string {
	return fmt.Sprintf("%s • %d plays", i.track.Artist, i.track.PlayCount)
}

func artistItems(artists []repositories.ArtistCount) []list.Item {
	items := make([]list.Item, len(artists))
	for i, a := range artists {
		items[i] = artistItem{artist: a}
	}
	return items
}

func trackItems(tracks []repositories.TrackCount) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
