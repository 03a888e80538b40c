package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageSend(t *testing.T) {
	doc := MessageSend("Combine")
	require.Equal(t, "<Command><Message><Send><Text>Combine</Text></Send></Message></Command>", string(doc.Render()))
	require.Equal(t, "Command Message Send", doc.Action())
}

func TestSetMainVideoSource_PIP(t *testing.T) {
	doc := SetMainVideoSource([]int{3, 4}, LayoutPIP, "LowerRight", "Auto")
	require.Equal(t,
		"<Command><Video><Input><SetMainVideoSource>"+
			"<ConnectorId>3</ConnectorId><ConnectorId>4</ConnectorId>"+
			"<Layout>PIP</Layout><PIPPosition>LowerRight</PIPPosition><PIPSize>Auto</PIPSize>"+
			"</SetMainVideoSource></Input></Video></Command>",
		string(doc.Render()))
}

func TestSetMainVideoSource_SingleOmitsPIPFields(t *testing.T) {
	doc := SetMainVideoSource([]int{1}, LayoutEqual, "LowerRight", "Auto")
	require.NotContains(t, string(doc.Render()), "PIPPosition")
}

func TestMicrophoneLevel(t *testing.T) {
	doc := MicrophoneLevel(2, 0)
	require.Equal(t,
		`<Configuration><Audio><Input><Microphone item="2"><Level>0</Level></Microphone></Input></Audio></Configuration>`,
		string(doc.Render()))
	require.Equal(t, "Configuration Audio Input Microphone[2]", doc.Action())
}

func TestTouchPanelConfigure_EscapesValues(t *testing.T) {
	doc := TouchPanelConfigure("nav<1>", "InsideRoom", "Controller")
	require.Contains(t, string(doc.Render()), "<ID>nav&lt;1&gt;</ID>")
	require.Contains(t, string(doc.Render()), "<Mode>Controller</Mode>")
}

func TestCameraCommands(t *testing.T) {
	require.Equal(t, "Command Cameras SpeakerTrack Activate", SpeakerTrack(true).Action())
	require.Equal(t, "Command Cameras SpeakerTrack Deactivate", SpeakerTrack(false).Action())
	require.Contains(t, string(PresenterTrackOff().Render()), "<Mode>Off</Mode>")
}
