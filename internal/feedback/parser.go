package feedback

import (
	"encoding/xml"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/strefethen/room-combine-go/internal/peripherals"
)

// ErrUnrecognized is returned for a document with nothing this service uses.
var ErrUnrecognized = errors.New("feedback document has no peripheral or call data")

// Notification is the useful content of one feedback post.
type Notification struct {
	Peripherals []peripherals.Event
	ActiveCalls *int
}

// The codec posts the changed subtree under its root (Status or Event).
type document struct {
	Peripherals struct {
		Devices []connectedDevice `xml:"ConnectedDevice"`
	} `xml:"Peripherals"`
	SystemUnit struct {
		State struct {
			NumberOfActiveCalls *string `xml:"NumberOfActiveCalls"`
		} `xml:"State"`
	} `xml:"SystemUnit"`
}

type connectedDevice struct {
	Item         string `xml:"item,attr"`
	ID           string `xml:"ID"`
	Type         string `xml:"Type"`
	SerialNumber string `xml:"SerialNumber"`
	Status       string `xml:"Status"`
}

// Parse extracts peripheral changes and the active call count from an
// HttpFeedback body. Any status other than Connected counts as a disconnect.
func Parse(body []byte, receivedAt time.Time) (Notification, error) {
	var doc document
	if err := xml.Unmarshal(body, &doc); err != nil {
		return Notification{}, err
	}

	var notification Notification
	for _, device := range doc.Peripherals.Devices {
		id := strings.TrimSpace(device.ID)
		if id == "" {
			id = strings.TrimSpace(device.Item)
		}
		if id == "" && strings.TrimSpace(device.SerialNumber) == "" {
			continue
		}
		status := peripherals.StatusDisconnected
		if strings.EqualFold(strings.TrimSpace(device.Status), string(peripherals.StatusConnected)) {
			status = peripherals.StatusConnected
		}
		notification.Peripherals = append(notification.Peripherals, peripherals.Event{
			ID:         id,
			Type:       strings.TrimSpace(device.Type),
			Serial:     strings.TrimSpace(device.SerialNumber),
			Status:     status,
			ReceivedAt: receivedAt,
		})
	}

	if raw := doc.SystemUnit.State.NumberOfActiveCalls; raw != nil {
		count, err := strconv.Atoi(strings.TrimSpace(*raw))
		if err != nil {
			return Notification{}, err
		}
		notification.ActiveCalls = &count
	}

	if len(notification.Peripherals) == 0 && notification.ActiveCalls == nil {
		return Notification{}, ErrUnrecognized
	}
	return notification, nil
}
