package apic

import (
	"encoding/json"
	"strings"
)

// Attributes are the string attributes of a managed object.
type Attributes map[string]string

// Object is the body of one managed object in a request or response.
type Object struct {
	Attributes Attributes `json:"attributes"`
	Children   []Envelope `json:"children,omitempty"`
}

// Envelope is the single-key JSON wrapper {"<class>": {...}} used for every
// managed object on the wire.
type Envelope map[string]Object

// NewEnvelope wraps attributes for the given class.
func NewEnvelope(class string, attrs Attributes) Envelope {
	if attrs == nil {
		attrs = Attributes{}
	}
	return Envelope{class: Object{Attributes: attrs}}
}

// Marshal encodes the envelope as a request body.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Class returns the class key of a single-key envelope.
func (e Envelope) Class() string {
	for k := range e {
		return k
	}
	return ""
}

// AttributesOf returns the attributes of class, if the envelope carries it.
func (e Envelope) AttributesOf(class string) (Attributes, bool) {
	obj, ok := e[class]
	if !ok || obj.Attributes == nil {
		return nil, false
	}
	return obj.Attributes, true
}

// response is the top-level body of every controller reply.
type response struct {
	ImData     []Envelope `json:"imdata"`
	TotalCount string     `json:"totalCount,omitempty"`
}

// errorDetails extracts the controller error code and text from imdata.
func errorDetails(imdata []Envelope) (code, text string) {
	if len(imdata) > 0 {
		if attrs, ok := imdata[0].AttributesOf("error"); ok {
			c, hasCode := attrs["code"]
			t, hasText := attrs["text"]
			if hasCode && hasText {
				return c, t
			}
		}
	}
	return unknownErrorCode, unknownErrorText
}

func isTokenInvalid(code, text string) bool {
	return code == codeForbidden && strings.HasPrefix(strings.ToLower(text), tokenInvalidText)
}

type credentials struct {
	Name string `json:"name"`
	Pwd  string `json:"pwd,omitempty"`
}

type userEnvelope struct {
	AAAUser struct {
		Attributes credentials `json:"attributes"`
	} `json:"aaaUser"`
}

func userBody(name, pwd string) ([]byte, error) {
	var body userEnvelope
	body.AAAUser.Attributes = credentials{Name: name, Pwd: pwd}
	return json.Marshal(body)
}
