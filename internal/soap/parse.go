package soap

import (
	"encoding/xml"
	"io"
	"strings"
)

// parseTransportInfo walks the GetTransportInfoResponse body looking for
// CurrentTransportState and CurrentTransportStatus elements, tolerating
// whatever namespace prefix the renderer used — the same token-walk
// approach used elsewhere in the stack to read XML that doesn't match a
// fixed struct shape across devices.
func parseTransportInfo(body []byte) TransportInfo {
	var info TransportInfo
	walkLeafElements(body, map[string]*string{
		"CurrentTransportState":  &info.CurrentTransportState,
		"CurrentTransportStatus": &info.CurrentTransportStatus,
	})
	if info.CurrentTransportState == "" {
		info.CurrentTransportState = "UNKNOWN"
	}
	if info.CurrentTransportStatus == "" {
		info.CurrentTransportStatus = "UNKNOWN"
	}
	return info
}

// parsePositionInfo walks the GetPositionInfoResponse body for RelTime
// and TrackDuration.
func parsePositionInfo(body []byte) PositionInfo {
	var info PositionInfo
	walkLeafElements(body, map[string]*string{
		"RelTime":       &info.RelTime,
		"TrackDuration": &info.TrackDuration,
	})
	if info.RelTime == "" {
		info.RelTime = "UNKNOWN"
	}
	if info.TrackDuration == "" {
		info.TrackDuration = "UNKNOWN"
	}
	return info
}

// walkLeafElements decodes body as a token stream and, for every local
// element name present as a key in targets, captures its character data
// into the pointed-to string.
func walkLeafElements(body []byte, targets map[string]*string) {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	var current *string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if ptr, ok := targets[t.Name.Local]; ok {
				current = ptr
			} else {
				current = nil
			}
		case xml.CharData:
			if current != nil {
				*current += string(t)
			}
		case xml.EndElement:
			if _, ok := targets[t.Name.Local]; ok {
				current = nil
			}
		}
	}
}
