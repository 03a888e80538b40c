package feedback

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/peripherals"
)

const peripheralFeedback = `<?xml version="1.0"?>
<Status>
  <Identification><SystemName>Primary</SystemName></Identification>
  <Peripherals>
    <ConnectedDevice item="1003">
      <ID>nav-node1-ctl</ID>
      <Type>TouchPanel</Type>
      <SerialNumber>FOC1234</SerialNumber>
      <Status>Connected</Status>
    </ConnectedDevice>
    <ConnectedDevice item="1004">
      <ID>00:11:22</ID>
      <Type>AudioMicrophone</Type>
      <SerialNumber>N1-MIC-A</SerialNumber>
      <Status>LostConnection</Status>
    </ConnectedDevice>
  </Peripherals>
</Status>`

const callFeedback = `<Status><SystemUnit><State><NumberOfActiveCalls>2</NumberOfActiveCalls></State></SystemUnit></Status>`

func TestParse_Peripherals(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	notification, err := Parse([]byte(peripheralFeedback), at)
	require.NoError(t, err)
	require.Nil(t, notification.ActiveCalls)
	require.Equal(t, []peripherals.Event{
		{ID: "nav-node1-ctl", Type: "TouchPanel", Serial: "FOC1234", Status: peripherals.StatusConnected, ReceivedAt: at},
		{ID: "00:11:22", Type: "AudioMicrophone", Serial: "N1-MIC-A", Status: peripherals.StatusDisconnected, ReceivedAt: at},
	}, notification.Peripherals)
}

func TestParse_ActiveCalls(t *testing.T) {
	notification, err := Parse([]byte(callFeedback), time.Now())
	require.NoError(t, err)
	require.NotNil(t, notification.ActiveCalls)
	require.Equal(t, 2, *notification.ActiveCalls)
	require.Empty(t, notification.Peripherals)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`<Status><Audio><Volume>50</Volume></Audio></Status>`), time.Now())
	require.ErrorIs(t, err, ErrUnrecognized)

	_, err = Parse([]byte(`<Status><SystemUnit><State><NumberOfActiveCalls>many</NumberOfActiveCalls></State></SystemUnit></Status>`), time.Now())
	require.Error(t, err)

	_, err = Parse([]byte(`not xml`), time.Now())
	require.Error(t, err)
}

type recordingHub struct{ events []peripherals.Event }

func (h *recordingHub) Publish(ev peripherals.Event) { h.events = append(h.events, ev) }

type recordingCalls struct{ counts []int }

func (c *recordingCalls) NotifyActiveCalls(count int) { c.counts = append(c.counts, count) }

func newTestRouter() (*chi.Mux, *recordingHub, *recordingCalls) {
	hub := &recordingHub{}
	calls := &recordingCalls{}
	router := chi.NewRouter()
	RegisterRoutes(router, NewHandler(hub, calls, nil))
	return router, hub, calls
}

func TestReceive(t *testing.T) {
	router, hub, calls := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewBufferString(peripheralFeedback)))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, hub.events, 2)
	require.Empty(t, calls.counts)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewBufferString(callFeedback)))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []int{2}, calls.counts)
}

func TestReceive_Unrecognized(t *testing.T) {
	router, hub, _ := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewBufferString(`<Status/>`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "FEEDBACK_UNRECOGNIZED")
	require.Empty(t, hub.events)
}
