package strava

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivitiesURL(t *testing.T) {
	url := ActivitiesURL(BaseURL, 3, 30)
	assert.Equal(t, "https://www.strava.com/api/v3/athlete/activities?page=3&per_page=30", url)
}

func TestStreamsURL(t *testing.T) {
	url := StreamsURL(BaseURL, 555, []string{"time", "heartrate"})
	assert.Equal(t, "https://www.strava.com/api/v3/activities/555/streams?keys=time%2Cheartrate&key_by_type=true", url)
}

func TestTokenURL(t *testing.T) {
	assert.Equal(t, "https://www.strava.com/oauth/token", TokenURL(BaseURL))
	assert.Equal(t, "http://127.0.0.1:8080/oauth/token", TokenURL("http://127.0.0.1:8080/api/v3"))
}
