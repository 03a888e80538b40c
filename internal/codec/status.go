package codec

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Activity is the call and sharing state of a codec.
type Activity struct {
	ActiveCalls int
	Sharing     bool
}

// Idle reports whether the codec has no call and no local share.
func (a Activity) Idle() bool {
	return a.ActiveCalls == 0 && !a.Sharing
}

// ErrStatusIncomplete is returned when a status document lacks the call count.
var ErrStatusIncomplete = errors.New("status response has no NumberOfActiveCalls")

// ReadActivity fetches /Status and extracts call and sharing state.
func (c *Client) ReadActivity(ctx context.Context, target Target) (Activity, error) {
	payload, err := c.GetXML(ctx, target, "/Status")
	if err != nil {
		return Activity{}, err
	}
	return ParseActivity(payload)
}

// ParseActivity scans a status document for NumberOfActiveCalls and any
// LocalInstance under Presentation.
func ParseActivity(payload []byte) (Activity, error) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	var activity Activity
	foundCalls := false
	var stack []string

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "NumberOfActiveCalls":
				var value string
				if err := decoder.DecodeElement(&value, &se); err != nil {
					return Activity{}, fmt.Errorf("decode NumberOfActiveCalls: %w", err)
				}
				count, err := strconv.Atoi(strings.TrimSpace(value))
				if err != nil {
					return Activity{}, fmt.Errorf("parse NumberOfActiveCalls %q: %w", value, err)
				}
				activity.ActiveCalls = count
				foundCalls = true
				continue
			case "LocalInstance":
				if containsElem(stack, "Presentation") {
					activity.Sharing = true
				}
			}
			stack = append(stack, se.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !foundCalls {
		return Activity{}, ErrStatusIncomplete
	}
	return activity, nil
}

func containsElem(stack []string, name string) bool {
	for _, elem := range stack {
		if elem == name {
			return true
		}
	}
	return false
}
