package strava

import (
	"fmt"
	"net/url"
	"strings"
)

// BaseURL is the default Strava API v3 endpoint.
const BaseURL = "https://www.strava.com/api/v3"

// ActivitiesURL returns the URL for one page of the athlete's activities.
func ActivitiesURL(baseURL string, page, perPage int) string {
	return fmt.Sprintf("%s/athlete/activities?page=%d&per_page=%d", baseURL, page, perPage)
}

// StreamsURL returns the URL for an activity's streams, keyed by type.
func StreamsURL(baseURL string, activityID int64, types []string) string {
	keys := url.QueryEscape(strings.Join(types, ","))
	return fmt.Sprintf("%s/activities/%d/streams?keys=%s&key_by_type=true", baseURL, activityID, keys)
}

// TokenURL returns the OAuth token exchange endpoint for an API base URL.
// The API base ends in /api/v3; the token endpoint lives at the host root.
func TokenURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/api/v3") + "/oauth/token"
}
