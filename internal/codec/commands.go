package codec

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Root is the top-level element of a putxml document.
type Root string

const (
	RootCommand       Root = "Command"
	RootConfiguration Root = "Configuration"
)

// Layouts accepted by SetMainVideoSource.
const (
	LayoutEqual     = "Equal"
	LayoutPIP       = "PIP"
	LayoutProminent = "Prominent"
)

// PathElem is one element on the path to a command. Item renders as the
// item attribute used by indexed configuration nodes such as Microphone[2].
type PathElem struct {
	Name string
	Item int
}

// Arg is one parameter; names may repeat (ConnectorId).
type Arg struct {
	Name  string
	Value string
}

// Document is a single xCommand or xConfiguration request.
type Document struct {
	Root Root
	Path []PathElem
	Args []Arg
}

// Action is the space-joined path, used in logs and errors.
func (d Document) Action() string {
	parts := make([]string, 0, len(d.Path)+1)
	parts = append(parts, string(d.Root))
	for _, elem := range d.Path {
		if elem.Item > 0 {
			parts = append(parts, elem.Name+"["+strconv.Itoa(elem.Item)+"]")
			continue
		}
		parts = append(parts, elem.Name)
	}
	return strings.Join(parts, " ")
}

// Render produces the XML body posted to /putxml.
func (d Document) Render() []byte {
	var buf strings.Builder
	buf.WriteString("<")
	buf.WriteString(string(d.Root))
	buf.WriteString(">")

	for _, elem := range d.Path {
		buf.WriteString("<")
		buf.WriteString(elem.Name)
		if elem.Item > 0 {
			buf.WriteString(` item="`)
			buf.WriteString(strconv.Itoa(elem.Item))
			buf.WriteString(`"`)
		}
		buf.WriteString(">")
	}

	for _, arg := range d.Args {
		buf.WriteString("<")
		buf.WriteString(arg.Name)
		buf.WriteString(">")
		buf.WriteString(escapeXML(arg.Value))
		buf.WriteString("</")
		buf.WriteString(arg.Name)
		buf.WriteString(">")
	}

	for i := len(d.Path) - 1; i >= 0; i-- {
		buf.WriteString("</")
		buf.WriteString(d.Path[i].Name)
		buf.WriteString(">")
	}

	buf.WriteString("</")
	buf.WriteString(string(d.Root))
	buf.WriteString(">")
	return []byte(buf.String())
}

func escapeXML(input string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(input)); err != nil {
		return input
	}
	return b.String()
}

func command(path ...string) Document {
	elems := make([]PathElem, len(path))
	for i, name := range path {
		elems[i] = PathElem{Name: name}
	}
	return Document{Root: RootCommand, Path: elems}
}

func (d Document) with(name, value string) Document {
	d.Args = append(d.Args, Arg{Name: name, Value: value})
	return d
}

// MessageSend carries a short text token to macros on the receiving codec.
func MessageSend(text string) Document {
	return command("Message", "Send").with("Text", text)
}

// SetMainVideoSource selects one or more main video connectors. PIP
// position and size are only sent with the PIP layout.
func SetMainVideoSource(connectors []int, layout, pipPosition, pipSize string) Document {
	doc := command("Video", "Input", "SetMainVideoSource")
	for _, connector := range connectors {
		doc = doc.with("ConnectorId", strconv.Itoa(connector))
	}
	if layout != "" {
		doc = doc.with("Layout", layout)
	}
	if layout == LayoutPIP {
		if pipPosition != "" {
			doc = doc.with("PIPPosition", pipPosition)
		}
		if pipSize != "" {
			doc = doc.with("PIPSize", pipSize)
		}
	}
	return doc
}

// SpeakerTrack turns local speaker auto-framing on or off.
func SpeakerTrack(on bool) Document {
	if on {
		return command("Cameras", "SpeakerTrack", "Activate")
	}
	return command("Cameras", "SpeakerTrack", "Deactivate")
}

// PresenterTrackOff disables persistent presenter tracking.
func PresenterTrackOff() Document {
	return command("Cameras", "PresenterTrack", "Set").with("Mode", "Off")
}

// TouchPanelConfigure pairs a touch panel into a location and role.
func TouchPanelConfigure(id, location, mode string) Document {
	return command("Peripherals", "TouchPanel", "Configure").
		with("ID", id).
		with("Location", location).
		with("Mode", mode)
}

// MicrophoneLevel sets the input gain of one microphone channel.
func MicrophoneLevel(channel, level int) Document {
	return Document{
		Root: RootConfiguration,
		Path: []PathElem{{Name: "Audio"}, {Name: "Input"}, {Name: "Microphone", Item: channel}},
		Args: []Arg{{Name: "Level", Value: strconv.Itoa(level)}},
	}
}
