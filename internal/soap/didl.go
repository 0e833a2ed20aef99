// Package soap builds and sends UPnP AVTransport SOAP 1.1 requests and
// parses their XML responses (spec.md §4.2, §6).
package soap

import (
	"path/filepath"
	"strings"
)

// mimeByExt maps a file extension to the MIME type sent in DIDL-Lite
// protocolInfo, per spec.md §4.2 "DIDL-Lite metadata".
var mimeByExt = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".ts":   "video/MP2T",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".srt":  "text/plain",
}

// dlnaProfileByExt maps a file extension to its DLNA.ORG_PN profile.
var dlnaProfileByExt = map[string]string{
	".mp4":  "AVC_MP4_BL_CIF15_AAC_520",
	".avi":  "MPEG_PS_PAL",
	".mkv":  "MPEG_PS_PAL",
	".mov":  "MPEG_PS_PAL",
	".mpeg": "MPEG_PS_PAL",
	".mpg":  "MPEG_PS_PAL",
	".ts":   "MPEG_TS_SD_EU_ISO",
}

const (
	defaultMIME    = "video/mp4"
	defaultProfile = "MPEG_PS_PAL"
)

// MIMEType returns the MIME type for a video URL/path, by extension,
// defaulting to video/mp4 for unknown extensions.
func MIMEType(videoURL string) string {
	if m, ok := mimeByExt[strings.ToLower(filepath.Ext(videoURL))]; ok {
		return m
	}
	return defaultMIME
}

// DLNAProfile returns the DLNA.ORG_PN profile for a video URL/path.
func DLNAProfile(videoURL string) string {
	if p, ok := dlnaProfileByExt[strings.ToLower(filepath.Ext(videoURL))]; ok {
		return p
	}
	return defaultProfile
}

// protocolInfo builds the res element's protocolInfo attribute, per
// spec.md §4.2's exact DLNA flag string.
func protocolInfo(videoURL string) string {
	return "http-get:*:" + MIMEType(videoURL) + ":DLNA.ORG_PN=" + DLNAProfile(videoURL) +
		";DLNA.ORG_OP=01;DLNA.ORG_CI=0;DLNA.ORG_FLAGS=01500000000000000000000000000000"
}

// BuildDIDL builds the DIDL-Lite metadata document for videoURL, matching
// the wire format spec.md §4.2 describes and the one dlna_device.py's
// _create_didl_metadata builds. videoURL is XML-entity-escaped.
func BuildDIDL(videoURL string) string {
	var b strings.Builder
	b.WriteString(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"><item id="0" parentID="-1" restricted="1"><dc:title>Video</dc:title><upnp:class>object.item.videoItem</upnp:class><res protocolInfo="`)
	b.WriteString(escapeXML(protocolInfo(videoURL)))
	b.WriteString(`">`)
	b.WriteString(escapeXML(videoURL))
	b.WriteString(`</res></item></DIDL-Lite>`)
	return b.String()
}

// escapeXML escapes the five predefined XML entities. DIDL-Lite content
// (file URLs, titles) is untrusted enough — and UPnP renderers strict
// enough — that this needs to run even inside an attribute value.
func escapeXML(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
