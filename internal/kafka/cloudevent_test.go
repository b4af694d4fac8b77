package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudEvent(t *testing.T) {
	type payload struct {
		RideID string `json:"ride_id"`
	}

	ce, err := NewCloudEvent("service-dispatch", "ride.accepted", payload{RideID: "r-1"})
	require.NoError(t, err)
	ce = ce.WithSubject("r-1")
	assert.Equal(t, "1.0", ce.SpecVersion)
	assert.NotEmpty(t, ce.ID)

	raw, err := json.Marshal(ce)
	require.NoError(t, err)

	back, err := ParseCloudEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "ride.accepted", back.Type)
	assert.Equal(t, "r-1", back.Subject)

	var p payload
	require.NoError(t, back.ParseData(&p))
	assert.Equal(t, "r-1", p.RideID)

	_, err = ParseCloudEvent([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = ParseCloudEvent([]byte(`not json`))
	assert.Error(t, err)
}
