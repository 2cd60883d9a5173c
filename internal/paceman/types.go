package paceman

import (
	"strings"
	"time"

	"pacewatch/internal/pace"
)

// RecentRun is one entry of the recent-runs listing.
type RecentRun struct {
	ID   int64 `json:"id"`
	Time int64 `json:"time,omitempty"` // unix millis, informational
}

// RunSnapshot is the committed world-state view of one run.
//
// Data keeps the raw split fields so the resolver can probe key variants;
// the typed accessors below pull the few metadata fields we care about.
type RunSnapshot struct {
	IsLive bool          `json:"isLive"`
	Data   pace.Snapshot `json:"data"`
}

func (s *RunSnapshot) strField(key string) string {
	if s == nil || s.Data == nil {
		return ""
	}
	v, _ := s.Data[key].(string)
	return v
}

func (s *RunSnapshot) msField(key string) time.Time {
	if s == nil || s.Data == nil {
		return time.Time{}
	}
	f, ok := s.Data[key].(float64)
	if !ok || f <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(f))
}

func (s *RunSnapshot) Nickname() string     { return s.strField("nickname") }
func (s *RunSnapshot) TwitchHandle() string { return s.strField("twitch") }
func (s *RunSnapshot) UpdateTime() time.Time {
	if t := s.msField("updateTime"); !t.IsZero() {
		return t
	}
	return s.msField("update_time")
}
func (s *RunSnapshot) InsertTime() time.Time {
	if t := s.msField("insertTime"); !t.IsZero() {
		return t
	}
	return s.msField("insert_time")
}

// LiveRun is one entry of the live-runs event feed.
type LiveRun struct {
	Nickname  string      `json:"nickname"`
	User      LiveUser    `json:"user"`
	EventList []LiveEvent `json:"eventList"`
}

type LiveUser struct {
	LiveAccount string `json:"liveAccount"`
}

// LiveEvent carries one milestone event's elapsed times in milliseconds.
type LiveEvent struct {
	EventID string  `json:"eventId"`
	IGT     float64 `json:"igt"`
	RTA     float64 `json:"rta"`
}

// Matches reports whether the live run belongs to the given streamer,
// by nickname or live (twitch) account, case-insensitive.
func (r LiveRun) Matches(streamer string) bool {
	return strings.EqualFold(r.Nickname, streamer) ||
		strings.EqualFold(r.User.LiveAccount, streamer)
}

// Events converts the run's event list into the resolver's lookup shape.
func (r LiveRun) Events() pace.LiveEvents {
	out := make(pace.LiveEvents, len(r.EventList))
	for _, e := range r.EventList {
		if e.EventID == "" {
			continue
		}
		out[e.EventID] = pace.LiveTimes{IGT: int64(e.IGT), RTA: int64(e.RTA)}
	}
	return out
}
