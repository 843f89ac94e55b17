package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

func TestWireTime(t *testing.T) {
	var got struct {
		At *WireTime `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":"2030-05-01 18:30:00"}`), &got))
	require.Equal(t, time.Date(2030, 5, 1, 18, 30, 0, 0, time.UTC), got.At.Time)

	raw, err := json.Marshal(WireTime{Time: time.Date(2030, 5, 1, 20, 30, 0, 0, time.FixedZone("CEST", 2*3600))})
	require.NoError(t, err)
	require.JSONEq(t, `"2030-05-01 18:30:00"`, string(raw))

	var null struct {
		At *WireTime `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":null}`), &null))
	require.Nil(t, null.At)
}

func decodeBody(t *testing.T, body string, dst any) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return decodeJSON(req, dst)
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty body", ``, "body"},
		{"malformed", `{"title":`, "body"},
		{"unknown field", `{"nope":1}`, "body"},
		{"trailing data", `{"title":"abc"} {}`, "body"},
		{"wrong type", `{"paid":"yes"}`, "paid"},
		{"bad date", `{"eventDate":"tomorrow"}`, "eventDate"},
		{"numeric date", `{"eventDate":5}`, "eventDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dto NewEventDto
			err := decodeBody(t, tt.body, &dto)
			require.Error(t, err)
			require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestDecodeJSONPassesOversizedBodyThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 100)+`"}`))
	req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, 16)

	var dto NewCategoryDto
	err := decodeJSON(req, &dto)
	var tooLarge *http.MaxBytesError
	require.ErrorAs(t, err, &tooLarge)
}

func TestNewEventDtoDomain(t *testing.T) {
	var dto NewEventDto
	require.NoError(t, decodeBody(t, `{
		"title": "  Go meetup ",
		"annotation": "annotation text",
		"description": "description text",
		"category": "cat",
		"location": {"lat": 1.5, "lon": -2.5},
		"eventDate": "2030-01-01 18:00:00",
		"participantLimit": 10
	}`, &dto))

	in := dto.domain()
	require.Equal(t, "Go meetup", in.Title)
	require.Equal(t, &events.Location{Lat: 1.5, Lon: -2.5}, in.Location)
	require.Equal(t, time.Date(2030, 1, 1, 18, 0, 0, 0, time.UTC), in.EventDate)
	require.Nil(t, in.Paid)
	require.Nil(t, in.RequestModeration)
	require.Equal(t, 10, *in.ParticipantLimit)
}

func TestUpdateEventDtoPatch(t *testing.T) {
	var dto UpdateEventDto
	require.NoError(t, decodeBody(t, `{"title":" New ","stateAction":"publish_event"}`, &dto))

	patch, action, err := dto.patch()
	require.NoError(t, err)
	require.Equal(t, "New", *patch.Title)
	require.Nil(t, patch.Description)
	require.Nil(t, patch.EventDate)
	require.NotNil(t, action)
	require.Equal(t, events.ActionPublish, *action)

	dto = UpdateEventDto{}
	require.NoError(t, decodeBody(t, `{"stateAction":"ARCHIVE"}`, &dto))
	_, _, err = dto.patch()
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStatusUpdateResultKeepsEmptyLists(t *testing.T) {
	raw, err := json.Marshal(toStatusUpdateResult(&events.StatusUpdateResult{}))
	require.NoError(t, err)
	require.JSONEq(t, `{"confirmedRequests":[],"rejectedRequests":[],"cascadedRequests":[]}`, string(raw))
}
