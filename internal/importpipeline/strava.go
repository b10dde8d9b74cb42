package importpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"runcore/internal/trace"
)

// stravaAPIBase mirrors the pack's coachgpt strava client constant.
const stravaAPIBase = "https://www.strava.com/api/v3"

// StravaStreams is the subset of a Strava activity's data streams needed
// to reconstruct a point-by-point trace, shaped after coachgpt's
// pkg/strava Streams/Stream types.
type StravaStreams struct {
	Time           []float64 `json:"time"`
	LatLng         [][2]float64 `json:"latlng"`
	Altitude       []float64 `json:"altitude"`
	VelocitySmooth []float64 `json:"velocity_smooth"`
	Heartrate      []float64 `json:"heartrate"`
}

// StravaActivity is the subset of a Strava activity summary the pipeline
// needs to stamp an import's start time and external id.
type StravaActivity struct {
	ID             int64  `json:"id"`
	StartDate      string `json:"start_date"`
}

// StravaClient fetches a single activity's streams for import, following
// coachgpt's pkg/strava.Client bearer-token GET pattern.
type StravaClient struct {
	HTTPClient *http.Client
}

// NewStravaClient builds a client; a nil HTTPClient falls back to
// http.DefaultClient.
func NewStravaClient(httpClient *http.Client) *StravaClient {
	return &StravaClient{HTTPClient: httpClient}
}

// FetchActivityPoints retrieves an activity's streams and normalizes them
// into the same trace.Point stream GPX/FIT parsing produces (spec §4.3:
// "already normalized to a point stream at fetch time").
func (c *StravaClient) FetchActivityPoints(ctx context.Context, accessToken string, activityID int64) ([]trace.Point, time.Time, error) {
	activity, err := c.getActivity(ctx, accessToken, activityID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("strava: get activity: %w", err)
	}

	streams, err := c.getStreams(ctx, accessToken, activityID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("strava: get streams: %w", err)
	}

	startedAt, err := time.Parse(time.RFC3339, activity.StartDate)
	if err != nil {
		startedAt = time.Now().UTC()
	}

	return normalizeStravaStreams(streams, startedAt), startedAt, nil
}

func normalizeStravaStreams(s *StravaStreams, startedAt time.Time) []trace.Point {
	n := len(s.LatLng)
	points := make([]trace.Point, 0, n)
	for i := 0; i < n; i++ {
		lat, lng := s.LatLng[i][0], s.LatLng[i][1]
		if !validCoordinate(lat, lng) {
			continue
		}

		p := trace.Point{Lat: lat, Lng: lng}
		if i < len(s.Time) {
			p.Timestamp = startedAt.Add(time.Duration(s.Time[i]) * time.Second)
		}
		if i < len(s.Altitude) {
			p.Alt = s.Altitude[i]
		}
		if i < len(s.VelocitySmooth) {
			speed := s.VelocitySmooth[i]
			p.Speed = &speed
		}
		if i < len(s.Heartrate) {
			hr := int(s.Heartrate[i])
			p.HeartRate = &hr
		}
		points = append(points, p)
	}
	return points
}

func (c *StravaClient) getActivity(ctx context.Context, token string, id int64) (*StravaActivity, error) {
	var activity StravaActivity
	if err := c.apiGET(ctx, token, fmt.Sprintf("/activities/%d", id), &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

func (c *StravaClient) getStreams(ctx context.Context, token string, id int64) (*StravaStreams, error) {
	var streams StravaStreams
	path := fmt.Sprintf("/activities/%d/streams?keys=time,latlng,altitude,velocity_smooth,heartrate&key_by_type=true", id)
	if err := c.apiGET(ctx, token, path, &streams); err != nil {
		return nil, err
	}
	return &streams, nil
}

func (c *StravaClient) apiGET(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stravaAPIBase+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s -> %s: %s", path, resp.Status, string(body))
	}

	return json.Unmarshal(body, out)
}
