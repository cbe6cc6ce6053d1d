package crawler

// Payload is the type-specific part of a post. The set of implementations is closed: one per
// post type plus UnsupportedPayload for anything the extractor doesn't recognize.
type Payload interface {
	payloadType() string
}

type ImagePayload struct {
	Source      string `json:"source,omitempty"`
	Description string `json:"description,omitempty"`
}

type QuotePayload struct {
	Quote       string `json:"quote,omitempty"`
	Attribution string `json:"attribution,omitempty"`
}

type LinkPayload struct {
	LinkTitle string `json:"link_title,omitempty"`
	Url       string `json:"url,omitempty"`
	Body      string `json:"body,omitempty"`
}

type VideoPayload struct {
	Embed  string `json:"embed,omitempty"`
	Source string `json:"source,omitempty"`
	Body   string `json:"body,omitempty"`
}

type FilePayload struct {
	LinkTitle string `json:"link_title,omitempty"`
	Url       string `json:"url,omitempty"`
	Body      string `json:"body,omitempty"`
}

type ReviewPayload struct {
	Embed       string `json:"embed,omitempty"`
	Description string `json:"description,omitempty"`
	Rating      string `json:"rating"`
	Url         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
}

type EventPayload struct {
	Url         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	DateStart   string `json:"date_start"`
	DateEnd     string `json:"date_end,omitempty"`
	Location    string `json:"location,omitempty"`
	IcalUrl     string `json:"ical_url,omitempty"`
	IcalXml     string `json:"ical_xml,omitempty"`
	Description string `json:"description,omitempty"`
}

type RegularPayload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type UnsupportedPayload struct {
	Unsupported bool `json:"unsupported"`
}

func (ImagePayload) payloadType() string       { return "image" }
func (QuotePayload) payloadType() string       { return "quote" }
func (LinkPayload) payloadType() string        { return "link" }
func (VideoPayload) payloadType() string       { return "video" }
func (FilePayload) payloadType() string        { return "file" }
func (ReviewPayload) payloadType() string      { return "review" }
func (EventPayload) payloadType() string       { return "event" }
func (RegularPayload) payloadType() string     { return "regular" }
func (UnsupportedPayload) payloadType() string { return "unsupported" }
